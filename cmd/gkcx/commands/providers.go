package commands

import (
	"github.com/sankforever/gkcx/lib/ocr"
	"github.com/sankforever/gkcx/lib/ocr/baidu"
	"github.com/sankforever/gkcx/lib/ocr/openai"
)

func newOcrProvider(config Config) (ocr.Provider, error) {
	switch config.Ocr.Provider {
	case "openai":
		return openai.NewClient(openai.Options{
			ApiKey:  config.Ocr.Openai.ApiKey,
			Model:   config.Ocr.Openai.Model,
			BaseUrl: config.Ocr.Openai.BaseUrl,
			Prompt:  config.Ocr.Openai.Prompt,
		})
	default:
		endpoint := baidu.EndpointAccurate
		if config.Ocr.Baidu.General {
			endpoint = baidu.EndpointGeneral
		}
		return baidu.NewClient(baidu.Options{
			ApiKey:    config.Ocr.Baidu.ApiKey,
			SecretKey: config.Ocr.Baidu.SecretKey,
			BaseUrl:   config.Ocr.Baidu.BaseUrl,
			Endpoint:  endpoint,
		})
	}
}
