// Package quickbase defines the public types of the Quickbase REST client:
// configuration, descriptors, query and upsert options, the Client interface
// and the typed errors every call returns.
//
// Clients are built by the qbclient package:
//
//	client, err := qbclient.New(ctx, &quickbase.Config{
//	  RealmHostname: "example.quickbase.com",
//	  UserToken:     os.Getenv("QB_REALM_API_KEY"),
//	  AppIDs:        map[string]string{"Sales": "bq8xyz123"},
//	})
//	if err != nil {
//	  return err
//	}
//	defer client.Close()
//
//	result, err := client.Query(ctx, "Sales", "Orders", quickbase.QueryOptions{
//	  Select: []string{"Order ID", "Status"},
//	  Where:  query.Equals("Status", "Active"),
//	})
//
// # Errors
//
// Network and HTTP failures are *TransportError values classified by Kind.
// Names that do not exist remotely are *LookupError values and are never
// retried. Expression problems are *query.RenderError values. Use the Is*
// helpers or errors.As to inspect them:
//
//	if quickbase.IsRetryExhausted(err) {
//	  // the API stayed unavailable for every attempt
//	}
package quickbase
