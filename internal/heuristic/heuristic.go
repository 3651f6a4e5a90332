// Package heuristic flags messages that are obviously scams without asking
// a model. A miss means nothing; only a hit short-circuits.
package heuristic

import (
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Match describes why a message was flagged.
type Match struct {
	Hit    bool   `json:"hit"`
	Rule   string `json:"rule,omitempty"`
	Phrase string `json:"phrase,omitempty"` // the text that matched
}

const (
	RulePhrase       = "scam-phrase"
	RuleCryptoPayout = "crypto-payout"
)

// A "won" must not continue into "won't" or another word.
var scamPhraseRe = regexp.MustCompile(`(?i)\b(?:you(?:'ve| have)? (?:just )?won(?:[^\w'’]|$)|(?:claim your (?:prize|reward|winnings)|lottery winner|(?:pay|payment) (?:with|in|via) (?:a )?gift ?cards?|verify your (?:bank )?account (?:now|immediately|within)|your account (?:has been|will be) (?:suspended|locked|closed)|wire (?:the )?(?:money|funds) (?:now|immediately|today)|double your (?:bitcoin|crypto|btc|eth|money)|send (?:your )?(?:otp|one[- ]time (?:code|password)))\b)`)

var (
	hexAddrRe  = regexp.MustCompile(`\b0x[0-9a-fA-F]{40}\b`)
	transferRe = regexp.MustCompile(`(?i)\b(?:send|transfer|deposit|pay)\b`)
)

// Check runs the rules against message.
func Check(message string) Match {
	if loc := scamPhraseRe.FindStringIndex(message); loc != nil {
		return Match{Hit: true, Rule: RulePhrase, Phrase: strings.TrimRight(message[loc[0]:loc[1]], " \t\n!.,?")}
	}
	if addr, ok := cryptoPayout(message); ok {
		return Match{Hit: true, Rule: RuleCryptoPayout, Phrase: addr}
	}
	return Match{}
}

// cryptoPayout reports a request to move funds to an Ethereum address.
func cryptoPayout(message string) (string, bool) {
	if !transferRe.MatchString(message) {
		return "", false
	}
	for _, cand := range hexAddrRe.FindAllString(message, -1) {
		if common.IsHexAddress(cand) {
			return common.HexToAddress(cand).Hex(), true
		}
	}
	return "", false
}
