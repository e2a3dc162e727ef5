package service

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"go.uber.org/zap"

	"market_feed/pkg/tracing"
)

// Tracing открывает спан на запрос и кладёт trace_id/span_id в UserContext.
func Tracing() fiber.Handler {
	return func(c *fiber.Ctx) error {
		span := opentracing.GlobalTracer().StartSpan("http " + c.Method() + " " + c.Path())
		defer span.Finish()
		ext.SpanKindRPCServer.Set(span)
		ext.HTTPMethod.Set(span, c.Method())
		ext.HTTPUrl.Set(span, c.OriginalURL())

		ctx := opentracing.ContextWithSpan(c.UserContext(), span)
		traceID, spanID := tracing.IDs(span)
		if traceID != "" {
			ctx = context.WithValue(ctx, tracing.TraceIDKey, traceID)
			ctx = context.WithValue(ctx, tracing.SpanIDKey, spanID)
			c.Set("X-Trace-Id", traceID)
		}
		c.SetUserContext(ctx)

		err := c.Next()
		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
			ext.Error.Set(span, true)
		}
		ext.HTTPStatusCode.Set(span, uint16(status))
		return err
	}
}

// AccessLog пишет запрос в лог с trace_id, если он есть.
func AccessLog(log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
		}
		if id, ok := c.UserContext().Value(tracing.TraceIDKey).(string); ok {
			fields = append(fields, zap.String("trace_id", id))
		}
		if err != nil {
			fields = append(fields, zap.Error(err))
		}
		log.Debug("http request", fields...)
		return err
	}
}
