/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package pubsub pulls messages from a Pub/Sub subscription and hands them
// to a CloudEvents handler.
package pubsub

import (
	"context"
	"strings"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/chainguard-dev/clog"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// ToCloudEvent converts msg into a CloudEvent. Messages published in the
// binary CloudEvents mapping ("ce-" attributes) keep their attributes.
// Others, such as raw Buildbucket notifications, become events of
// defaultType.
func ToCloudEvent(msg *pubsub.Message, defaultType, source string) cloudevents.Event {
	event := cloudevents.NewEvent()
	event.SetID(msg.ID)
	event.SetType(defaultType)
	event.SetSource(source)
	if !msg.PublishTime.IsZero() {
		event.SetTime(msg.PublishTime)
	}

	contentType := cloudevents.ApplicationJSON
	for k, v := range msg.Attributes {
		if k == "content-type" {
			contentType = v
			continue
		}
		name, ok := strings.CutPrefix(k, "ce-")
		if !ok {
			continue
		}
		switch name {
		case "id":
			event.SetID(v)
		case "type":
			event.SetType(v)
		case "source":
			event.SetSource(v)
		case "subject":
			event.SetSubject(v)
		case "specversion":
		case "time":
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				event.SetTime(t)
			}
		default:
			event.SetExtension(name, v)
		}
	}
	event.SetDataContentType(contentType)
	event.DataEncoded = msg.Data
	return event
}

// Handler processes a CloudEvent. A nil or ACK result acknowledges the
// message; any other error asks for redelivery.
type Handler func(context.Context, cloudevents.Event) error

func deliver(ctx context.Context, msg *pubsub.Message, defaultType, source string, h Handler) bool {
	event := ToCloudEvent(msg, defaultType, source)
	ctx = clog.WithLogger(ctx, clog.FromContext(ctx).With("message", msg.ID, "ce-type", event.Type()))

	if err := h(ctx, event); err != nil && !cloudevents.IsACK(err) {
		clog.WarnContext(ctx, "Handler failed, message will be redelivered", "error", err)
		return false
	}
	return true
}

// Receive pulls from sub until ctx is done, converting each message with
// ToCloudEvent.
func Receive(ctx context.Context, sub *pubsub.Subscriber, defaultType, source string, h Handler) error {
	return sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if deliver(ctx, msg, defaultType, source, h) {
			msg.Ack()
		} else {
			msg.Nack()
		}
	})
}
