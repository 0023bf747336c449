// Command storectl onboards stores and seeds their catalog.
//
//	storectl register -id S1 -name "Corner Shop" -email owner@example.com -password secret
//	storectl approve -id S1
//	storectl product -store S1 -sku A1 -name Tea -price 120.00 -stock 40
//	storectl coupon -store S1 -code SAVE10 -type percent -value 10 -max-discount 50
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/safar/tapcart/internal/auth"
	"github.com/safar/tapcart/internal/config"
	"github.com/safar/tapcart/internal/database"
	"github.com/safar/tapcart/internal/store"
	"github.com/shopspring/decimal"
)

const usage = "Usage: storectl [register|approve|product|coupon] [flags]"

func main() {
	if len(os.Args) < 2 {
		log.Fatal(usage)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	svc := auth.NewService(db, auth.NewSessions(cfg.Auth.SessionSecret, cfg.Auth.SessionTTL))

	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "register":
		err = register(ctx, svc, args)
	case "approve":
		err = approve(ctx, svc, args)
	case "product":
		err = addProduct(ctx, db, args)
	case "coupon":
		err = addCoupon(ctx, db, args)
	default:
		err = fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func register(ctx context.Context, svc *auth.Service, args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	id := fs.String("id", "", "store id")
	name := fs.String("name", "", "display name")
	email := fs.String("email", "", "owner email")
	password := fs.String("password", "", "login password")
	_ = fs.Parse(args)

	st, err := svc.RegisterStore(ctx, *id, *name, *email, *password)
	if err != nil {
		return fmt.Errorf("register store: %w", err)
	}
	log.Printf("Registered store %s (%s), status %s", st.StoreID, st.Email, st.Status)
	return nil
}

func approve(ctx context.Context, svc *auth.Service, args []string) error {
	fs := flag.NewFlagSet("approve", flag.ExitOnError)
	id := fs.String("id", "", "store id")
	_ = fs.Parse(args)

	st, err := svc.ApproveStore(ctx, *id)
	if err != nil {
		return fmt.Errorf("approve store: %w", err)
	}
	log.Printf("Store %s is %s", st.StoreID, st.Status)
	return nil
}

func addProduct(ctx context.Context, q database.Querier, args []string) error {
	fs := flag.NewFlagSet("product", flag.ExitOnError)
	storeID := fs.String("store", "", "store id")
	sku := fs.String("sku", "", "custom product id shown to customers")
	name := fs.String("name", "", "product name")
	category := fs.String("category", "", "category")
	price := fs.String("price", "0", "unit price")
	stock := fs.Int("stock", 0, "units on hand")
	_ = fs.Parse(args)

	p, err := decimal.NewFromString(*price)
	if err != nil {
		return fmt.Errorf("parse price: %w", err)
	}

	product, err := store.CreateProduct(ctx, q, store.NewProduct{
		StoreID:  *storeID,
		CustomID: *sku,
		Name:     *name,
		Category: *category,
		Price:    p,
		Stock:    *stock,
	})
	if err != nil {
		return err
	}
	log.Printf("Created product %d (%s) in store %s", product.ID, product.Name, product.StoreID)
	return nil
}

func addCoupon(ctx context.Context, q database.Querier, args []string) error {
	fs := flag.NewFlagSet("coupon", flag.ExitOnError)
	storeID := fs.String("store", "", "store id")
	code := fs.String("code", "", "coupon code")
	kind := fs.String("type", "fixed", "fixed or percent")
	value := fs.String("value", "0", "discount value")
	minOrder := fs.String("min-order", "0", "minimum subtotal")
	maxDiscount := fs.String("max-discount", "", "cap for percent coupons")
	validDays := fs.Int("valid-days", 0, "days until expiry, 0 for none")
	maxUses := fs.Int("max-redemptions", 0, "redemption limit, 0 for none")
	_ = fs.Parse(args)

	nc := store.NewCoupon{StoreID: *storeID, Code: *code, DiscountType: *kind}

	var err error
	if nc.DiscountValue, err = decimal.NewFromString(*value); err != nil {
		return fmt.Errorf("parse value: %w", err)
	}
	if nc.MinOrderAmount, err = decimal.NewFromString(*minOrder); err != nil {
		return fmt.Errorf("parse min-order: %w", err)
	}
	if *maxDiscount != "" {
		d, err := decimal.NewFromString(*maxDiscount)
		if err != nil {
			return fmt.Errorf("parse max-discount: %w", err)
		}
		nc.MaxDiscount = &d
	}
	if *validDays > 0 {
		until := time.Now().AddDate(0, 0, *validDays)
		nc.ValidTo = &until
	}
	if *maxUses > 0 {
		nc.MaxRedemptions = maxUses
	}

	c, err := store.CreateCoupon(ctx, q, nc)
	if err != nil {
		return err
	}
	log.Printf("Created coupon %s for store %s", c.Code, c.StoreID)
	return nil
}
