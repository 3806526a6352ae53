// Package audit records every access decision as an append-only Record.
//
// # Sinks
//
// MemoryStore keeps records in process, DBStore writes the audit_records
// table next to the inventory schema, and FileStore writes rotated JSON
// lines. MultiStore fans a record out to several sinks.
//
// AsyncRecorder sits in front of a sink so that recording never blocks or
// fails the operation being audited:
//
//	recorder := audit.NewAsyncRecorder(store, audit.AsyncOptions{
//		Shards:  4,
//		Logger:  logger,
//		Metrics: metrics,
//	})
//	defer recorder.Close(ctx)
//
// Records for one actor are hashed to the same shard and written in order.
//
// # Queries and export
//
//	records, err := store.Query(ctx, audit.Query{
//		OrganizationID: orgID,
//		Start:          time.Now().Add(-24 * time.Hour),
//	})
//	err = audit.Export(w, records, audit.ExportFormatCSV)
//
// Archiver uploads a range of records to S3 as NDJSON and can be scheduled
// with robfig/cron.
package audit
