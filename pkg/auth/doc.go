// Package auth implements the custom-authentication contract used by the
// master server.
//
// A client may send an opaque parameter string (for example
// "user=ann&token=secret") with its authenticate request. The master forwards
// it to an HTTP endpoint which answers with a JSON Result:
//
//	{"ResultCode": 1, "Message": ""}
//
// ResultCode 1 accepts the client, 2 rejects it and 3 reports missing or
// malformed parameters.
//
// Handler is a sample endpoint that checks the user and token parameters
// against a fixed credential table. HTTPVerifier is the caller side: it
// forwards the parameters to such an endpoint and decodes the Result.
//
//	h := auth.NewHandler(auth.Credentials{"ann": "secret"}, logger)
//	http.ListenAndServe(":8081", auth.NewRouter(h))
//
//	v := &auth.HTTPVerifier{URL: "http://localhost:8081/auth"}
//	res, err := v.Verify(ctx, "user=ann&token=secret")
package auth
