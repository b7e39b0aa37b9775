// Package servicelog is the front door of the log shipping pipeline.
//
// A process installs exactly one LogSink: a synchronous console sink, an
// asynchronous file sink, or an asynchronous pub/sub sink. The asynchronous
// sinks filter by severity, render each record to a line and hand it to a
// bounded mailbox without blocking; a background worker drains the mailbox
// into the destination.
//
//	cfg := servicelog.DefaultPubSubConfig("redis://localhost:6379/0", "billing")
//	sink, err := servicelog.InitPubSub(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer sink.Close(context.Background())
//
//	sink.Errorf("charge %s failed: %v", id, err)
//
// Diagnostics about the pipeline itself (dropped records, reconnects,
// rotation failures) go to stderr through logrus and never through the
// pipeline they describe.
package servicelog
