package restyutil

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
)

type Output interface {
	Write(id string, contents string)
}

// DumpMessages writes every completed request/response pair made by
// `client` to `output`, ids are `<prefix>-<n>.txt` with n counting up from 1.
// a nil output makes this a no-op.
func DumpMessages(client *resty.Client, prefix string, counter *atomic.Uint64, output Output) {
	if output == nil {
		return
	}
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		id := fmt.Sprintf("%s-%d.txt", prefix, counter.Add(1))
		output.Write(id, FormatHttpMessage(res))
		slog.Debug(
			"dumped http message",
			"method", res.Request.Method,
			"url", res.Request.URL,
			"status", res.StatusCode(),
			"id", id,
		)
		return nil
	})
}
