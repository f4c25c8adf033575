package gkcf

import "strings"

// the portal serves its assets from these roots, references to them are
// relative and break once the page is opened from disk.
var relativeRefs = []string{
	`src="lib`,
	`src="js`,
	`href="lib`,
	`href="css`,
}

// RewriteRelativeRefs makes the portal's relative script and stylesheet
// references absolute so the document renders outside of the site.
// Only the attributes listed in relativeRefs are touched, absolute urls are
// left as they are.
func RewriteRelativeRefs(document, origin string) string {
	origin = strings.TrimRight(origin, "/")
	pairs := make([]string, 0, len(relativeRefs)*2)
	for _, ref := range relativeRefs {
		attr, path, _ := strings.Cut(ref, `"`)
		pairs = append(pairs, ref, attr+`"`+origin+"/"+path)
	}
	return strings.NewReplacer(pairs...).Replace(document)
}
