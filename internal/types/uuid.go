package types

import (
	"fmt"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/teris-io/shortid"
)

// GenerateUUID returns a k-sortable unique identifier
func GenerateUUID() string {
	return ulid.Make().String()
}

// GenerateUUIDWithPrefix returns a k-sortable unique identifier
// with a prefix ex inv_0ujsswThIGTUYm2K8FjOOfXtY1K
func GenerateUUIDWithPrefix(prefix string) string {
	if prefix == "" {
		return GenerateUUID()
	}
	return fmt.Sprintf("%s_%s", prefix, GenerateUUID())
}

var (
	sidGenerator *shortid.Shortid
	once         sync.Once
)

func initializeSID() {
	var err error
	sidGenerator, err = shortid.New(1, shortid.DefaultABC, 2342)
	if err != nil {
		panic("failed to initialize shortid generator: " + err.Error())
	}
}

// GenerateShortIDWithPrefix returns a short ID with a prefix.
// Total length is capped at 12 characters, e.g., `INV-xYZ12A8Q`.
func GenerateShortIDWithPrefix(prefix string) string {
	once.Do(initializeSID)

	id, err := sidGenerator.Generate()
	if err != nil {
		return ""
	}
	id = strings.ReplaceAll(id, "-", "")

	availableLen := 12 - len(prefix)
	if availableLen <= 0 {
		return ""
	}

	if len(id) > availableLen {
		id = id[:availableLen]
	}

	return strings.ToUpper(fmt.Sprintf("%s%s", prefix, id))
}

const (
	// Prefixes for all domains and entities

	UUID_PREFIX_ACCOUNT         = "acct"
	UUID_PREFIX_BUNDLE          = "bndl"
	UUID_PREFIX_SUBSCRIPTION    = "subs"
	UUID_PREFIX_BILLING_EVENT   = "bev"
	UUID_PREFIX_CATALOG         = "cat"
	UUID_PREFIX_CATALOG_VERSION = "catv"
	UUID_PREFIX_PLAN            = "plan"
	UUID_PREFIX_PHASE           = "phase"
	UUID_PREFIX_INVOICE         = "inv"
	UUID_PREFIX_INVOICE_ITEM    = "inv_item"
	UUID_PREFIX_CREDIT_ENTRY    = "cba"
	UUID_PREFIX_NOTIFICATION    = "ntf"
	UUID_PREFIX_LIFECYCLE_EVENT = "evt"
)

const (
	SHORT_ID_PREFIX_INVOICE = "INV-"
)
