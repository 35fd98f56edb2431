package idb

import "time"

// ErrorHandler receives failures of asynchronous operations. op names the
// operation ("open", "put", "pages", ...).
type ErrorHandler func(op string, err error)

// Option configures a Factory and the databases it hands out.
type Option func(*options)

type options struct {
	codec       Codec
	onError     ErrorHandler
	openTimeout time.Duration
	noSync      bool
	pageSize    int
}

func defaultOptions() options {
	return options{
		codec:       ProtoCodec{},
		openTimeout: 5 * time.Second,
		pageSize:    DefaultPageSize,
	}
}

// WithCodec sets the record codec. The default is ProtoCodec.
func WithCodec(c Codec) Option {
	return func(o *options) {
		if c != nil {
			o.codec = c
		}
	}
}

// WithErrorHandler replaces the default handler, which logs failures on the
// "idb" component logger.
func WithErrorHandler(h ErrorHandler) Option {
	return func(o *options) { o.onError = h }
}

// WithOpenTimeout bounds how long Open waits for a file held by another
// connection. Zero waits forever.
func WithOpenTimeout(d time.Duration) Option {
	return func(o *options) { o.openTimeout = d }
}

// WithNoSync disables fsync on commit.
func WithNoSync(noSync bool) Option {
	return func(o *options) { o.noSync = noSync }
}

// WithDefaultPageSize sets the page size Pages uses when called with size < 1.
func WithDefaultPageSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.pageSize = n
		}
	}
}
