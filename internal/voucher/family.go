package voucher

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Family identifiers.
const (
	FamilyContent     = "content"
	FamilyCertificate = "certificate"
	FamilyRole        = "role"
	FamilyValidation  = "validation"
	FamilyPurchase    = "purchase"
	FamilyCoaching    = "coaching"
	FamilyTransfer    = "transfer"
)

// Family is one voucher variant: its struct schema, the signing-domain
// name/version its verifier hard-codes, and the field naming the account
// the voucher is issued to.
type Family struct {
	ID            string
	DomainName    string
	DomainVersion string
	Schema        Schema
	AccountField  string
}

// Families returns the built-in voucher families. Every call builds fresh
// values, so callers may override domains without affecting each other.
func Families() []Family {
	return []Family{
		{
			ID:            FamilyContent,
			DomainName:    "UDAOCMinter",
			DomainVersion: "1",
			AccountField:  "redeemer",
			Schema: Schema{
				PrimaryType: "ContentVoucher",
				Fields: []apitypes.Type{
					{Name: "tokenId", Type: "uint256"},
					{Name: "uri", Type: "string"},
					{Name: "redeemer", Type: "address"},
					{Name: "isCoachingEnabled", Type: "bool"},
					{Name: "name", Type: "string"},
					{Name: "description", Type: "string"},
				},
			},
		},
		{
			// Deployed certificate verifiers may have been built with the
			// "ValidationScore" domain name; override via config if so.
			ID:            FamilyCertificate,
			DomainName:    "UDAOCertificate",
			DomainVersion: "1",
			AccountField:  "redeemer",
			Schema: Schema{
				PrimaryType: "CertificateVoucher",
				Fields: []apitypes.Type{
					{Name: "tokenId", Type: "uint256"},
					{Name: "uri", Type: "string"},
					{Name: "redeemer", Type: "address"},
					{Name: "name", Type: "string"},
					{Name: "description", Type: "string"},
				},
			},
		},
		{
			ID:            FamilyRole,
			DomainName:    "UDAOStaker",
			DomainVersion: "1",
			AccountField:  "redeemer",
			Schema: Schema{
				PrimaryType: "RoleVoucher",
				Fields: []apitypes.Type{
					{Name: "redeemer", Type: "address"},
					{Name: "validUntil", Type: "uint256"},
					{Name: "roleId", Type: "uint256"},
				},
			},
		},
		{
			ID:            FamilyValidation,
			DomainName:    "ValidationScore",
			DomainVersion: "1",
			AccountField:  "validator",
			Schema: Schema{
				PrimaryType: "ValidationScoreVoucher",
				Fields: []apitypes.Type{
					{Name: "tokenId", Type: "uint256"},
					{Name: "score", Type: "uint256"},
					{Name: "validator", Type: "address"},
					{Name: "validUntil", Type: "uint256"},
				},
			},
		},
		{
			ID:            FamilyPurchase,
			DomainName:    "ContentManager",
			DomainVersion: "1",
			AccountField:  "redeemer",
			Schema: Schema{
				PrimaryType: "PurchaseVoucher",
				Fields: []apitypes.Type{
					{Name: "tokenId", Type: "uint256"},
					{Name: "fullContentPurchase", Type: "bool"},
					{Name: "partId", Type: "uint256"},
					{Name: "giftReceiver", Type: "address"},
					{Name: "validUntil", Type: "uint256"},
					{Name: "redeemer", Type: "address"},
				},
			},
		},
		{
			ID:            FamilyCoaching,
			DomainName:    "UDAOCoaching",
			DomainVersion: "1",
			AccountField:  "learner",
			Schema: Schema{
				PrimaryType: "CoachingVoucher",
				Fields: []apitypes.Type{
					{Name: "coachingId", Type: "uint256"},
					{Name: "tokenId", Type: "uint256"},
					{Name: "price", Type: "uint256"},
					{Name: "learner", Type: "address"},
					{Name: "coach", Type: "address"},
					{Name: "validUntil", Type: "uint256"},
				},
			},
		},
		{
			ID:            FamilyTransfer,
			DomainName:    "UDAOCTransfer",
			DomainVersion: "1",
			AccountField:  "to",
			Schema: Schema{
				PrimaryType: "TransferVoucher",
				Fields: []apitypes.Type{
					{Name: "tokenId", Type: "uint256"},
					{Name: "from", Type: "address"},
					{Name: "to", Type: "address"},
					{Name: "validUntil", Type: "uint256"},
				},
			},
		},
	}
}

// Lookup returns the built-in family with the given id.
func Lookup(id string) (Family, error) {
	for _, f := range Families() {
		if f.ID == id {
			return f, nil
		}
	}
	return Family{}, fmt.Errorf("%w: %q", ErrUnknownFamily, id)
}

// WithDomain returns a copy of f with the domain name and version replaced.
// Empty arguments keep the current values.
func (f Family) WithDomain(name, version string) Family {
	out := f
	out.Schema = f.Schema.clone()
	if name != "" {
		out.DomainName = name
	}
	if version != "" {
		out.DomainVersion = version
	}
	return out
}

// Digest computes the typed-data digest of values (in schema order) under d.
func (f Family) Digest(d Domain, values ...any) (common.Hash, error) {
	words, _, err := f.Schema.encode(values)
	if err != nil {
		return common.Hash{}, err
	}
	return f.digest(d, words), nil
}

func (f Family) digest(d Domain, words []common.Hash) common.Hash {
	return TypedDigest(d.Separator(), f.Schema.hashStruct(words))
}

// DomainCollisions reports pairs of families signing under the same domain
// name and version. Two such families are only told apart by type hash.
func DomainCollisions(families []Family) [][2]string {
	var out [][2]string
	for i := range families {
		for j := i + 1; j < len(families); j++ {
			a, b := families[i], families[j]
			if a.DomainName == b.DomainName && a.DomainVersion == b.DomainVersion {
				out = append(out, [2]string{a.ID, b.ID})
			}
		}
	}
	return out
}
