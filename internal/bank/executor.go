package bank

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Executor is the downstream collaborator that reacts to completed task
// frames. The dialogue engine never performs side effects itself; the host
// calls Execute exactly once per completed frame with the final slot values.
// This implementation serves mock banking data in place of the real ledger.
type Executor struct {
	logger *slog.Logger
}

// NewExecutor creates a mock banking executor.
func NewExecutor(logger *slog.Logger) *Executor {
	return &Executor{logger: logger.With("component", "bank")}
}

var mockBalances = map[string]float64{
	"savings": 82500.00,
	"current": 23750.50,
}

var mockHistory = []string{
	"debit of ₹1,200.00 to landlord@okaxis",
	"credit of ₹45,000.00 from employer payroll",
	"debit of ₹599.00 to streamflix@ybl",
}

// Execute performs the side effect for a completed intent and returns a
// human-readable result. Unknown intents are not an error; the frame is
// acknowledged without a side effect.
func (x *Executor) Execute(ctx context.Context, intent string, slots map[string]string) (string, error) {
	switch intent {
	case "money_transfer":
		return x.executeTransfer(ctx, slots)
	case "check_balance":
		return x.lookupBalance(slots), nil
	case "view_history":
		return "Your three most recent transactions are: " + strings.Join(mockHistory, ", ") + ".", nil
	case "loan_query":
		return "Your home loan has ₹8,40,000.00 outstanding; the next EMI of ₹18,500.00 is due on the 5th.", nil
	case "set_reminder":
		return fmt.Sprintf("I'll remind you on %s.", slots["date"]), nil
	default:
		x.logger.Debug("no executor for intent", "intent", intent)
		return "", nil
	}
}

func (x *Executor) executeTransfer(_ context.Context, slots map[string]string) (string, error) {
	amount := slots["amount"]
	recipient := slots["upi_id"]
	if amount == "" || recipient == "" {
		return "", fmt.Errorf("transfer frame missing amount or upi_id")
	}
	ref := generateRefID("tf")
	x.logger.Info("transfer executed", "amount", amount, "recipient", recipient, "ref", ref)
	return fmt.Sprintf("Transfer of ₹%s to %s is on its way. Reference: %s.", FormatINR(amount), recipient, ref), nil
}

func (x *Executor) lookupBalance(slots map[string]string) string {
	accountType := strings.ToLower(strings.TrimSpace(slots["account_type"]))
	balance, ok := mockBalances[accountType]
	if !ok {
		return "I could not find your bank account details."
	}
	return fmt.Sprintf("Your current %s balance is ₹%s.", accountType, FormatINR(strconv.FormatFloat(balance, 'f', 2, 64)))
}

// FormatINR inserts Indian-system digit grouping into a plain digit string:
// the last three digits, then pairs (82500 → 82,500; 840000 → 8,40,000).
func FormatINR(value string) string {
	intPart := value
	fracPart := ""
	if idx := strings.IndexByte(value, '.'); idx >= 0 {
		intPart, fracPart = value[:idx], value[idx:]
	}
	if len(intPart) <= 3 {
		return intPart + fracPart
	}
	head := intPart[:len(intPart)-3]
	tail := intPart[len(intPart)-3:]
	var groups []string
	for len(head) > 2 {
		groups = append([]string{head[len(head)-2:]}, groups...)
		head = head[:len(head)-2]
	}
	if head != "" {
		groups = append([]string{head}, groups...)
	}
	return strings.Join(groups, ",") + "," + tail + fracPart
}

func generateRefID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, strings.ReplaceAll(uuid.NewString(), "-", "")[:16])
}
