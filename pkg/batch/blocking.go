package batch

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Gobusters/ectolinq"

	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
)

// BlockingKey names a participant attribute used to group comparison candidates
type BlockingKey string

const (
	BlockDateOfBirth    BlockingKey = "dob"
	BlockSurnameSoundex BlockingKey = "surname_soundex"
	BlockIdentification BlockingKey = "identification"
	BlockContact        BlockingKey = "contact"
	BlockAll            BlockingKey = "all"
)

// DefaultBlockingKeys is used when no keys are configured
var DefaultBlockingKeys = []BlockingKey{
	BlockDateOfBirth,
	BlockSurnameSoundex,
	BlockIdentification,
	BlockContact,
}

// ParseBlockingKeys validates configured key names. Duplicates are dropped and an empty
// list yields DefaultBlockingKeys.
func ParseBlockingKeys(names []string) ([]BlockingKey, error) {
	seen := make(map[BlockingKey]bool, len(names))
	keys := make([]BlockingKey, 0, len(names))
	for _, name := range names {
		key := BlockingKey(strings.ToLower(strings.TrimSpace(name)))
		if key == "" {
			continue
		}
		switch key {
		case BlockDateOfBirth, BlockSurnameSoundex, BlockIdentification, BlockContact, BlockAll:
		default:
			return nil, fmt.Errorf("unknown blocking key %q", name)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return append([]BlockingKey(nil), DefaultBlockingKeys...), nil
	}
	return keys, nil
}

// Blocker groups participants that share a blocking key value. Only participants in a
// common block are compared.
type Blocker struct {
	keys []BlockingKey
}

// NewBlocker creates a blocker over keys
func NewBlocker(keys []BlockingKey) (*Blocker, error) {
	parsed, err := ParseBlockingKeys(keyNames(keys))
	if err != nil {
		return nil, err
	}
	return &Blocker{keys: parsed}, nil
}

// String is the sorted, comma separated key list. It takes part in the run fingerprint.
func (b *Blocker) String() string {
	names := keyNames(b.keys)
	sort.Strings(names)
	return strings.Join(names, ",")
}

func keyNames(keys []BlockingKey) []string {
	return ectolinq.Map(keys, func(k BlockingKey) string { return string(k) })
}

func prefixed(prefix string, values []string) []string {
	return ectolinq.Map(values, func(v string) string { return prefix + v })
}

// Values returns the block values of a normalized participant, prefixed by key
func (b *Blocker) Values(p normalizers.Participant) []string {
	var values []string
	for _, key := range b.keys {
		switch key {
		case BlockAll:
			values = append(values, "all")
		case BlockDateOfBirth:
			if p.DateOfBirth != "" {
				values = append(values, "dob:"+p.DateOfBirth)
			}
		case BlockSurnameSoundex:
			if code := matching.Soundex(p.LastName); code != "" {
				values = append(values, "sx:"+code)
			}
		case BlockIdentification:
			values = append(values, prefixed("id:", p.IdentificationNumbers)...)
		case BlockContact:
			values = append(values, prefixed("ct:", p.Contacts)...)
		}
	}
	return values
}

// Pairs returns every canonical pair of participants sharing at least one block, in key
// order. Participants without any block value are never paired.
func (b *Blocker) Pairs(participants []normalizers.Participant) []models.PairKey {
	blocks := make(map[string][]string)
	for _, p := range participants {
		for _, v := range b.Values(p) {
			blocks[v] = append(blocks[v], p.ID)
		}
	}

	set := make(map[models.PairKey]struct{})
	for _, ids := range blocks {
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				key := models.NewPairKey(ids[i], ids[j])
				if key.Valid() {
					set[key] = struct{}{}
				}
			}
		}
	}

	pairs := make([]models.PairKey, 0, len(set))
	for key := range set {
		pairs = append(pairs, key)
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Less(pairs[j]) })
	return pairs
}
