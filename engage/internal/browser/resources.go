package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// cdpResourceNames maps Chrome's singular resource-type labels onto the
// plural names used in configuration.
var cdpResourceNames = map[string]string{
	"image":      "images",
	"font":       "fonts",
	"media":      "media",
	"stylesheet": "stylesheets",
}

// blocklist is the configured set of resource names, lowercased once.
type blocklist map[string]bool

func newBlocklist(types []string) blocklist {
	b := make(blocklist, len(types))
	for _, t := range types {
		b[strings.ToLower(t)] = true
	}
	return b
}

// blocks reports whether a CDP resource type is configured for blocking.
func (b blocklist) blocks(resType string) bool {
	name := strings.ToLower(resType)
	if mapped, ok := cdpResourceNames[name]; ok {
		name = mapped
	}
	return b[name]
}

// applyResourceBlocking intercepts the tab's requests and fails the
// blocked types before they reach the network. A submission never needs
// images or fonts rendered; dropping them keeps settle times short.
func applyResourceBlocking(page *rod.Page, types []string) error {
	list := newBlocklist(types)
	router := page.HijackRequests()

	router.MustAdd("*", func(ctx *rod.Hijack) {
		if list.blocks(string(ctx.Request.Type())) {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})

	go router.Run()

	return nil
}
