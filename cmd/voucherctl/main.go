// Command voucherctl is the authority-side tool for issuing vouchers.
//
//	voucherctl keygen
//	voucherctl sign -key <hex> -system <addr> -recipient <addr> \
//	    -duration 720h -window 744h -price 1000 [-metadata ref] [-issued-at unix]
//
// sign prints the voucher and its signature as JSON, ready to post to
// /vouchers/redeem.
package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/xraph/tenure/types"
	"github.com/xraph/tenure/voucher"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, time.Now); err != nil {
		fmt.Fprintln(os.Stderr, "voucherctl:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer, now func() time.Time) error {
	if len(args) == 0 {
		return errors.New("usage: voucherctl keygen | sign [flags]")
	}
	switch args[0] {
	case "keygen":
		return keygen(out)
	case "sign":
		return sign(args[1:], out, now)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func keygen(out io.Writer) error {
	key, err := crypto.GenerateKey()
	if err != nil {
		return err
	}
	return json.NewEncoder(out).Encode(map[string]string{
		"private_key": hex.EncodeToString(crypto.FromECDSA(key)),
		"address":     crypto.PubkeyToAddress(key.PublicKey).Hex(),
	})
}

func sign(args []string, out io.Writer, now func() time.Time) error {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	keyHex := fs.String("key", os.Getenv("TENURE_AUTHORITY_KEY"), "authority private key (hex)")
	system := fs.String("system", "", "system address the voucher is bound to")
	recipient := fs.String("recipient", "", "recipient address")
	metadata := fs.String("metadata", "", "metadata reference")
	duration := fs.Duration("duration", 0, "subscription duration")
	window := fs.Duration("window", 0, "renewable window from issuance")
	price := fs.Int64("price", 0, "price in the smallest currency unit")
	currency := fs.String("currency", types.DefaultCurrency, "price currency")
	issuedAt := fs.Int64("issued-at", 0, "issuance time, unix seconds (default now)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *keyHex == "" {
		return errors.New("-key or TENURE_AUTHORITY_KEY is required")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(*keyHex, "0x"))
	if err != nil {
		return fmt.Errorf("parse key: %w", err)
	}
	for name, addr := range map[string]string{"system": *system, "recipient": *recipient} {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("-%s must be a hex address", name)
		}
	}

	at := now()
	if *issuedAt > 0 {
		at = time.Unix(*issuedAt, 0)
	}

	v := voucher.Voucher{
		Recipient:       common.HexToAddress(*recipient),
		MetadataRef:     *metadata,
		Duration:        *duration,
		RenewableWindow: *window,
		Price:           types.New(*price, *currency),
		IssuedAt:        at.UTC(),
	}
	sig, err := voucher.Sign(v, common.HexToAddress(*system), key)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"voucher": map[string]any{
			"recipient":                v.Recipient.Hex(),
			"metadata_ref":             v.MetadataRef,
			"duration_seconds":         int64(v.Duration / time.Second),
			"renewable_window_seconds": int64(v.RenewableWindow / time.Second),
			"price":                    v.Price,
			"issued_at":                v.IssuedAt.Unix(),
		},
		"signature": "0x" + hex.EncodeToString(sig),
		"signer":    crypto.PubkeyToAddress(key.PublicKey).Hex(),
	})
}
