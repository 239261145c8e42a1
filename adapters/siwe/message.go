package siwe

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const headerSuffix = " wants you to sign in with your Ethereum account:"

// Message holds the fields of an EIP-4361 sign-in message
type Message struct {
	Domain         string
	Address        common.Address
	Statement      string
	URI            string
	Version        string
	ChainID        string
	Nonce          string
	IssuedAt       time.Time
	ExpirationTime *time.Time
	NotBefore      *time.Time
	RequestID      string
	Resources      []string
}

// ParseMessage parses the plain-text EIP-4361 format
func ParseMessage(raw string) (*Message, error) {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	if len(lines) < 2 {
		return nil, fmt.Errorf("message too short")
	}

	header := lines[0]
	if !strings.HasSuffix(header, headerSuffix) {
		return nil, fmt.Errorf("missing sign-in header")
	}
	msg := &Message{Domain: strings.TrimSuffix(header, headerSuffix)}

	addr := strings.TrimSpace(lines[1])
	if !common.IsHexAddress(addr) {
		return nil, fmt.Errorf("invalid address %q", addr)
	}
	msg.Address = common.HexToAddress(addr)

	inResources := false
	for _, line := range lines[2:] {
		if inResources {
			if strings.HasPrefix(line, "- ") {
				msg.Resources = append(msg.Resources, strings.TrimPrefix(line, "- "))
				continue
			}
			inResources = false
		}

		key, value, found := strings.Cut(line, ": ")
		if !found {
			if line == "Resources:" {
				inResources = true
			} else if line != "" && msg.Statement == "" && msg.URI == "" {
				msg.Statement = line
			}
			continue
		}

		var err error
		switch key {
		case "URI":
			msg.URI = value
		case "Version":
			msg.Version = value
		case "Chain ID":
			msg.ChainID = value
		case "Nonce":
			msg.Nonce = value
		case "Issued At":
			msg.IssuedAt, err = time.Parse(time.RFC3339, value)
		case "Expiration Time":
			msg.ExpirationTime, err = parseOptionalTime(value)
		case "Not Before":
			msg.NotBefore, err = parseOptionalTime(value)
		case "Request ID":
			msg.RequestID = value
		default:
			if msg.Statement == "" && msg.URI == "" {
				msg.Statement = line
			}
		}
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", strings.ToLower(key), err)
		}
	}

	if msg.Nonce == "" {
		return nil, fmt.Errorf("missing nonce")
	}

	return msg, nil
}

func parseOptionalTime(value string) (*time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
