// Package qbclient is the entry point for constructing a Quickbase REST API
// client that implements the quickbase.Client interface.
//
// It layers configuration, the retrying HTTP transport, user-token
// authentication and the metadata cache on top of the types defined in the
// quickbase package. Applications address apps, tables and fields by name;
// the client resolves them to IDs and caches the answers until they are
// invalidated.
//
// Quick start
//
//	import (
//	  "context"
//	  "log"
//
//	  "github.com/fivetwenty-io/qbclient/pkg/qbclient"
//	  "github.com/fivetwenty-io/qbclient/pkg/query"
//	  "github.com/fivetwenty-io/qbclient/pkg/quickbase"
//	)
//
//	func example() {
//	  ctx := context.Background()
//
//	  cli, err := qbclient.NewWithToken(ctx, "example.quickbase.com", "b12345_token",
//	    map[string]string{"Sales": "bqsales01"})
//	  if err != nil { log.Fatal(err) }
//	  defer cli.Close()
//
//	  result, err := cli.QueryAll(ctx, "Sales", "Orders", quickbase.QueryOptions{
//	    Select: []string{"Record ID#", "Status"},
//	    Where:  query.Equals("Status", "Active"),
//	  })
//	  if err != nil { log.Fatal(err) }
//	  _ = result.Records
//	}
//
// # Environment
//
// NewFromEnv reads QB_REALM_HOSTNAME, QB_REALM_API_KEY and QB_APP_IDS (a JSON
// object of app name to app ID), plus the optional retry, logging and NATS
// settings documented in quickbase.Config.
//
// # Schema changes
//
// Field and table IDs are cached without expiry. After changing a table's
// schema call Invalidate with the table's scope; clients sharing a NATS
// server receive the invalidation too. Records calls rejected with 400 or 404
// refresh the table's metadata and retry once on their own.
package qbclient
