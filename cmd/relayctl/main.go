// relayctl is a CLI tool for exercising a running checkout relay.
// Each command performs a single request, making it composable for scripts.
//
// Commands:
//
//	relayctl cart -url URL -variant ID -price CENTS [-qty N] [-shipping CENTS]
//	relayctl session -url URL -id <session-id>
//	relayctl intent -url URL -id <session-id> [-email ADDR]
//	relayctl status -url URL -id <session-id>
//	relayctl create-order -url URL -id <session-id> -intent <pi_...>
//	relayctl discount -url URL -code CODE
//	relayctl config -url URL
//	relayctl stats -url URL [-from YYYY-MM-DD] [-to YYYY-MM-DD]
//
// Examples:
//
//	ID=$(relayctl cart -url http://localhost:8080 -variant 4410 -price 2500 -q)
//	relayctl intent -url http://localhost:8080 -id $ID -email buyer@example.com
//	relayctl status -url http://localhost:8080 -id $ID
package main

import (
	"flag"
	"fmt"
	"net/url"
	"os"
)

// Global flags (apply to all commands)
var (
	baseURL string
	quiet   bool
	noColor bool
	verbose bool
)

func init() {
	if os.Getenv("NO_COLOR") != "" {
		disableColors()
	}
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "cart":
		runCart(args)
	case "session":
		runSession(args)
	case "intent":
		runIntent(args)
	case "status":
		runStatus(args)
	case "create-order":
		runCreateOrder(args)
	case "discount":
		runDiscount(args)
	case "config":
		runConfig(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `relayctl - checkout relay test tool

Usage:
  relayctl <command> [options]

Commands:
  cart          Store a one-item cart snapshot and print the session id
  session       Show a stored cart session
  intent        Create or refresh the payment intent for a session
  status        Show payment and order status for a session
  create-order  Create the order for a session from a payment intent id
  discount      Look up a discount code
  config        Show the redacted relay settings
  stats         Show daily payment totals per account

Examples:
  # Store a cart and capture the session id
  ID=$(relayctl cart -url http://localhost:8080 -variant 4410 -price 2500 -q)

  # Get a client secret for the checkout page
  relayctl intent -url http://localhost:8080 -id "$ID" -email buyer@example.com

  # Poll for the order after paying
  relayctl status -url http://localhost:8080 -id "$ID"

Run 'relayctl <command> -h' for command-specific options.
`)
}

// newFlagSet registers the flags every command shares.
func newFlagSet(name, usage string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.StringVar(&baseURL, "url", "http://localhost:8080", "Relay base URL")
	fs.BoolVar(&quiet, "q", false, "Quiet mode - only output the key field")
	fs.BoolVar(&noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&verbose, "v", false, "Verbose - show full request/response")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: relayctl %s\n\nOptions:\n", usage)
		fs.PrintDefaults()
	}
	return fs
}

func parse(fs *flag.FlagSet, args []string) {
	fs.Parse(args)
	if noColor {
		disableColors()
	}
}

func requireFlag(fs *flag.FlagSet, value string) {
	if value == "" {
		fs.Usage()
		os.Exit(1)
	}
}

// =============================================================================
// CART COMMANDS
// =============================================================================

func runCart(args []string) {
	fs := newFlagSet("cart", "cart -variant ID -price CENTS [options]")
	var variantID, title, currency, sessionID string
	var quantity, price, shipping int64
	fs.StringVar(&variantID, "variant", "", "Storefront variant ID (required)")
	fs.StringVar(&title, "title", "Test product", "Line item title")
	fs.Int64Var(&quantity, "qty", 1, "Quantity")
	fs.Int64Var(&price, "price", 0, "Unit price in cents")
	fs.Int64Var(&shipping, "shipping", 0, "Shipping in cents")
	fs.StringVar(&currency, "currency", "", "Currency (defaults to the relay's)")
	fs.StringVar(&sessionID, "id", "", "Existing session id to replace")
	parse(fs, args)
	requireFlag(fs, variantID)

	subtotal := price * quantity
	body := map[string]any{
		"sessionId":     sessionID,
		"currency":      currency,
		"subtotalCents": subtotal,
		"shippingCents": shipping,
		"totalCents":    subtotal + shipping,
		"items": []map[string]any{{
			"id":             variantID,
			"variantId":      variantID,
			"title":          title,
			"quantity":       quantity,
			"unitPriceCents": price,
			"linePriceCents": subtotal,
		}},
	}

	resp, err := doRequest("POST", "/cart-session", body)
	if err != nil {
		fatal("Failed to store cart: %v", err)
	}

	id, _ := resp["sessionId"].(string)
	if quiet {
		fmt.Println(id)
		return
	}
	printSuccess("Cart stored")
	fmt.Printf("  Session: %s%s%s\n", colorCyan, id, colorReset)
	fmt.Printf("  Total: %s%s%s\n", colorGreen, formatCents(subtotal+shipping), colorReset)
}

func runSession(args []string) {
	fs := newFlagSet("session", "session -id <session-id> [options]")
	var id string
	fs.StringVar(&id, "id", "", "Session ID (required)")
	parse(fs, args)
	requireFlag(fs, id)

	resp, err := doRequest("GET", "/cart-session?sessionId="+url.QueryEscape(id), nil)
	if err != nil {
		fatal("Failed to get session: %v", err)
	}

	if quiet {
		fmt.Println(formatCents(resp["totalCents"]))
		return
	}
	printSuccess("Session retrieved")
	if items, ok := resp["items"].([]any); ok {
		fmt.Printf("  %sItems:%s\n", colorYellow, colorReset)
		for _, it := range items {
			if m, ok := it.(map[string]any); ok {
				fmt.Printf("    - %v x%v (%s)\n", m["title"], m["quantity"], formatCents(m["linePriceCents"]))
			}
		}
	}
	fmt.Printf("  Total: %s%s%s\n", colorGreen, formatCents(resp["totalCents"]), colorReset)
}

// =============================================================================
// PAYMENT COMMANDS
// =============================================================================

func runIntent(args []string) {
	fs := newFlagSet("intent", "intent -id <session-id> [options]")
	var id, email, firstName, lastName string
	fs.StringVar(&id, "id", "", "Session ID (required)")
	fs.StringVar(&email, "email", "", "Customer email")
	fs.StringVar(&firstName, "first-name", "Test", "Customer first name (used with -email)")
	fs.StringVar(&lastName, "last-name", "Buyer", "Customer last name (used with -email)")
	parse(fs, args)
	requireFlag(fs, id)

	body := map[string]any{"sessionId": id}
	if email != "" {
		body["customer"] = map[string]any{
			"email":     email,
			"firstName": firstName,
			"lastName":  lastName,
		}
	}

	resp, err := doRequest("POST", "/payment-intent", body)
	if err != nil {
		fatal("Failed to ensure payment intent: %v", err)
	}

	secret, _ := resp["clientSecret"].(string)
	if quiet {
		fmt.Println(secret)
		return
	}
	printSuccess("Payment intent ready")
	fmt.Printf("  Intent: %s%v%s\n", colorCyan, resp["paymentIntentId"], colorReset)
	fmt.Printf("  Amount: %s %v\n", formatCents(resp["amountCents"]), resp["currency"])
	if reused, _ := resp["reused"].(bool); reused {
		printInfo("Existing intent reused")
	}
}

func runStatus(args []string) {
	fs := newFlagSet("status", "status -id <session-id> [options]")
	var id string
	fs.StringVar(&id, "id", "", "Session ID (required)")
	parse(fs, args)
	requireFlag(fs, id)

	resp, err := doRequest("GET", "/order-status?sessionId="+url.QueryEscape(id), nil)
	if err != nil {
		fatal("Failed to get order status: %v", err)
	}

	status, _ := resp["paymentStatus"].(string)
	if quiet {
		fmt.Println(status)
		return
	}
	printSuccess("Status retrieved")
	fmt.Printf("  Payment: %s%s%s\n", colorCyan, status, colorReset)
	if n, ok := resp["orderNumber"].(string); ok && n != "" {
		fmt.Printf("  Order: %s#%s%s\n", colorGreen, n, colorReset)
	}
	if e, ok := resp["orderError"].(string); ok && e != "" {
		printWarning("Order error: %s", e)
	}
}

func runCreateOrder(args []string) {
	fs := newFlagSet("create-order", "create-order -id <session-id> -intent <pi_...> [options]")
	var id, intentID string
	fs.StringVar(&id, "id", "", "Session ID (required)")
	fs.StringVar(&intentID, "intent", "", "Payment intent ID (required)")
	parse(fs, args)
	requireFlag(fs, id)
	requireFlag(fs, intentID)

	resp, err := doRequest("POST", "/shopify/create-order", map[string]any{
		"sessionId":       id,
		"paymentIntentId": intentID,
	})
	if err != nil {
		fatal("Failed to create order: %v", err)
	}

	status, _ := resp["status"].(string)
	if quiet {
		fmt.Println(status)
		return
	}
	if ok, _ := resp["ok"].(bool); !ok {
		printWarning("Order not created yet: %s", status)
		return
	}
	printSuccess("Order %s", status)
	fmt.Printf("  Order: %s#%v%s\n", colorGreen, resp["orderNumber"], colorReset)
}

// =============================================================================
// OPERATOR COMMANDS
// =============================================================================

func runDiscount(args []string) {
	fs := newFlagSet("discount", "discount -code CODE [options]")
	var code string
	fs.StringVar(&code, "code", "", "Discount code (required)")
	parse(fs, args)
	requireFlag(fs, code)

	resp, err := doRequest("GET", "/discount?code="+url.QueryEscape(code), nil)
	if err != nil {
		fatal("Failed to look up discount: %v", err)
	}
	if quiet {
		fmt.Println(resp["code"])
		return
	}
	if active, _ := resp["active"].(bool); !active {
		printWarning("Discount %v is not active", resp["code"])
		return
	}
	printSuccess("Discount found")
	if pct, ok := resp["percentage"].(float64); ok && pct > 0 {
		fmt.Printf("  Off: %.0f%%\n", pct*100)
	} else {
		fmt.Printf("  Off: %s %v\n", formatCents(resp["amountCents"]), resp["currency"])
	}
}

func runConfig(args []string) {
	fs := newFlagSet("config", "config [options]")
	parse(fs, args)

	resp, err := doRequest("GET", "/config", nil)
	if err != nil {
		fatal("Failed to get config: %v", err)
	}
	if quiet {
		return
	}
	if accounts, ok := resp["accounts"].([]any); ok {
		printSuccess("%d processor account(s)", len(accounts))
		for _, a := range accounts {
			if m, ok := a.(map[string]any); ok {
				fmt.Printf("    - %v (active=%v, secret=%v)\n", m["label"], m["active"], m["hasSecretKey"])
			}
		}
	}
}

func runStats(args []string) {
	fs := newFlagSet("stats", "stats [-from YYYY-MM-DD] [-to YYYY-MM-DD] [options]")
	var from, to string
	fs.StringVar(&from, "from", "", "First day (default today)")
	fs.StringVar(&to, "to", "", "Last day (default today)")
	parse(fs, args)

	q := url.Values{}
	if from != "" {
		q.Set("from", from)
	}
	if to != "" {
		q.Set("to", to)
	}
	path := "/stats"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	resp, err := doRequest("GET", path, nil)
	if err != nil {
		fatal("Failed to get stats: %v", err)
	}
	if quiet {
		fmt.Println(formatCents(resp["totalCents"]))
		return
	}
	printSuccess("Stats %v to %v", resp["from"], resp["to"])
	fmt.Printf("  Total: %s%s%s over %v transaction(s)\n",
		colorGreen, formatCents(resp["totalCents"]), colorReset, resp["totalTransactions"])
}
