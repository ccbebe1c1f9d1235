package payment

import (
	"encoding/base64"
	"encoding/json"
	"strconv"

	"github.com/vitwit/x402-facilitator/pricing"
	"github.com/vitwit/x402-facilitator/types"
)

// ChallengeBuilder forms the 402 payment-required envelope for a matched
// price rule. It holds only static facilitator identity; building a
// challenge has no side effects.
type ChallengeBuilder struct {
	network           types.Network
	payTo             string
	maxTimeoutSeconds int
}

func NewChallengeBuilder(network types.Network, payTo string, maxTimeoutSeconds int) *ChallengeBuilder {
	return &ChallengeBuilder{
		network:           network,
		payTo:             payTo,
		maxTimeoutSeconds: maxTimeoutSeconds,
	}
}

// Requirements derives the per-request PaymentRequirements from a rule and
// the canonical resource URL.
func (b *ChallengeBuilder) Requirements(rule *pricing.Rule, resourceURL string) types.PaymentRequirements {
	return types.PaymentRequirements{
		Scheme:            types.SchemeExact,
		Network:           b.network.String(),
		MaxAmountRequired: strconv.FormatUint(rule.PriceUnits, 10),
		Resource:          resourceURL,
		Description:       rule.Description,
		MimeType:          "application/json",
		PayTo:             b.payTo,
		MaxTimeoutSeconds: b.maxTimeoutSeconds,
		Asset:             "SOL",
	}
}

// Challenge wraps the requirements in the x402 envelope returned with a
// 402 status.
func (b *ChallengeBuilder) Challenge(rule *pricing.Rule, resourceURL string) types.X402Response {
	return types.X402Response{
		X402Version: types.X402Version,
		Error:       "Payment Required",
		Accepts:     []types.PaymentRequirements{b.Requirements(rule, resourceURL)},
	}
}

// EncodeChallenge renders the PAYMENT-REQUIRED header value: base64 of the
// same JSON envelope the body carries.
func EncodeChallenge(resp types.X402Response) (string, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
