// Package tenure issues time-bound subscription assets from authority-signed
// vouchers and runs their subscription lifecycle.
//
// Tenure is a library. Import it into your Go service, give it a store, and
// it provides:
//
//   - Voucher redemption with signer recovery, replay protection and a
//     freshness window
//   - An asset registry with owners, approvals, operators and a pause switch
//   - Subscription records: expiration, renewable-until boundary and a unit
//     price fixed at issuance
//   - Synchronous payment to the authority with receipts and balances
//   - A persisted outbox of subscription updates
//   - Plugin hooks for metrics and audit trails
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/tenure"
//	    "github.com/xraph/tenure/store/postgres"
//	)
//
//	st, err := postgres.Open(ctx, databaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := st.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	engine, err := tenure.New(st,
//	    tenure.WithAuthority(authority),
//	    tenure.WithSystemAddress(system),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := engine.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Stop(ctx)
//
// # Vouchers
//
// The authority signs a voucher off-line; anyone holding the signature may
// redeem it once by paying its price:
//
//	id, err := engine.Issue(ctx, tenure.IssueRequest{
//	    Voucher:   v,
//	    Signature: sig,
//	    Payer:     payer,
//	    Payment:   v.Price,
//	})
//
// # Renewal
//
// The price of a voucher divided by its duration in whole seconds is the
// asset's unit price. Renewing by d costs unit price times whole seconds in
// d. An active subscription extends from its expiration; a lapsed one
// restarts from now while the renewable-until boundary has not passed.
//
//	expires, err := engine.Renew(ctx, tenure.RenewRequest{
//	    AssetID:  id,
//	    Caller:   owner,
//	    Duration: 30 * 24 * time.Hour,
//	    Payment:  fee,
//	})
//
// All monetary arithmetic is integer. Money amounts are in the smallest unit
// of the configured currency.
package tenure
