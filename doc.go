// Package clamd provides a Go SDK for the clamd antivirus daemon's TCP protocol.
//
// Data is submitted with the INSTREAM command: the payload is split into
// chunks, each sent as a big-endian uint32 length followed by the chunk, and
// the stream ends with a zero-length frame. PING and VERSION are single-shot
// commands. Every session uses its own TCP connection.
//
// ScanDirectory walks a tree without following symlinks and scans its regular
// files with a bounded number of concurrent sessions, folding per-file results
// into a ScanReport.
//
// Reports can be fanned out to NATS or Redis with the sub-package
// github.com/DevHatRo/clamd-sdk-go/notify.
//
// # Quick Start
//
//	client, err := clamd.NewClient("localhost", 3310)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	reply, err := client.ScanFile(ctx, "/path/to/file.pdf")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Reply: %s, Clean: %v\n", reply, clamd.IsCleanReply(reply))
package clamd
