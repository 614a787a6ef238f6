package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"project-tracker/backend/internal/notification"
)

const instrumentationName = "project-tracker/backend"

// NewNotificationEmitter returns a notification.Sink that records each notification as an OTel log record.
// If provider is nil, returns a no-op sink.
func NewNotificationEmitter(provider *sdklog.LoggerProvider) notification.Sink {
	if provider == nil {
		return noopSink{}
	}
	return NewNotificationEmitterWithLogger(provider.Logger(instrumentationName))
}

// NewNotificationEmitterWithLogger returns a sink emitting through logger.
func NewNotificationEmitterWithLogger(logger otellog.Logger) notification.Sink {
	return &notificationEmitter{logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

type noopSink struct{}

func (noopSink) Notify(context.Context, notification.Message) {}

type notificationEmitter struct {
	logger otellog.Logger
	now    func() time.Time
}

func (e *notificationEmitter) Notify(ctx context.Context, msg notification.Message) {
	rec := otellog.Record{}
	rec.SetTimestamp(e.now())
	rec.SetSeverity(severity(msg.Category))
	rec.SetSeverityText(string(msg.Category))
	rec.SetBody(otellog.StringValue(msg.Text))
	rec.AddAttributes(
		otellog.String("event.name", "tracker.notification"),
		otellog.String("user_id", msg.UserID),
	)
	if msg.Action != "" {
		rec.AddAttributes(otellog.String("action", string(msg.Action)))
	}
	if msg.Related != nil {
		rec.AddAttributes(
			otellog.String("related_type", msg.Related.Type),
			otellog.String("related_id", msg.Related.ID),
		)
	}
	e.logger.Emit(ctx, rec)
}

func severity(c notification.Category) otellog.Severity {
	switch c {
	case notification.CategoryWarning:
		return otellog.SeverityWarn
	case notification.CategoryError:
		return otellog.SeverityError
	default:
		return otellog.SeverityInfo
	}
}
