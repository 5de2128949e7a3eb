// Package identity assigns names to administrator SSH keys and registers
// them with sshcommand's access-control list.
//
// Existing identities are recovered by scanning `dokku ssh-keys:list`, whose
// lines carry a NAME="<identity>" field:
//
//	SHA256:Qe8l... NAME="admin1" SSHCOMMAND_ALLOWED_KEYS="none"
//	SHA256:c2Vj... NAME="web-admin2" SSHCOMMAND_ALLOWED_KEYS="none"
//
// Identities are a family name followed by a decimal suffix.
package identity

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
)

// Family is the name part of an identity.
type Family string

const (
	FamilyAdmin    Family = "admin"
	FamilyWebAdmin Family = "web-admin"
)

// Identity is a named ACL entry such as admin3 or web-admin1.
type Identity struct {
	Family Family
	Suffix int
}

func (i Identity) String() string {
	return fmt.Sprintf("%s%d", i.Family, i.Suffix)
}

func familyPattern(f Family) *regexp.Regexp {
	return regexp.MustCompile(`NAME="` + regexp.QuoteMeta(string(f)) + `(\d+)"`)
}

// ErrSuffixExhausted is returned when no suffix above the existing maximum
// fits in an int.
var ErrSuffixExhausted = errors.New("identity suffix exhausted")

// MaxSuffix returns the highest suffix of family found in listing, and false
// when no line names an identity of that family. Suffixes too large for an
// int saturate at math.MaxInt.
func MaxSuffix(listing []byte, f Family) (int, bool) {
	matches := familyPattern(f).FindAllSubmatch(listing, -1)
	highest := 0
	for _, m := range matches {
		n, err := strconv.Atoi(string(m[1]))
		if err != nil {
			n = math.MaxInt
		}
		if n > highest {
			highest = n
		}
	}
	return highest, len(matches) > 0
}

// Plan assigns identities to n new keys given the current listing.
//
// If any admin identity exists, keys become web-admin<k> continuing after the
// highest existing web-admin suffix. Otherwise keys become admin<i> where i is
// the 1-based position in the batch.
func Plan(listing []byte, n int) ([]Identity, error) {
	out := make([]Identity, 0, n)

	if _, ok := MaxSuffix(listing, FamilyAdmin); ok {
		last, _ := MaxSuffix(listing, FamilyWebAdmin)
		if n > math.MaxInt-last {
			return nil, fmt.Errorf("%w: %s%d", ErrSuffixExhausted, FamilyWebAdmin, last)
		}
		for i := 1; i <= n; i++ {
			out = append(out, Identity{Family: FamilyWebAdmin, Suffix: last + i})
		}
		return out, nil
	}

	for i := 1; i <= n; i++ {
		out = append(out, Identity{Family: FamilyAdmin, Suffix: i})
	}
	return out, nil
}
