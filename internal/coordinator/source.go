package coordinator

import (
	"iter"
	"math/big"

	"github.com/xkilldash9x/autopass/internal/attempt"
	"github.com/xkilldash9x/autopass/internal/keyspace"
	"github.com/xkilldash9x/autopass/internal/resume"
)

// source is a dense, indexable candidate space.
type source interface {
	Size() *big.Int
	Candidates(start, end *big.Int) (iter.Seq[attempt.Candidate], error)
}

// listSource is an explicit, materialized candidate list. Keys identify
// entries in resume records.
type listSource struct {
	cands []attempt.Candidate
	keys  []string
}

// newListSource crosses usernames with passwords, username outer. A nil
// username entry yields password-only candidates.
func newListSource(usernames []*string, passwords []string) *listSource {
	multi := len(usernames) > 1
	s := &listSource{
		cands: make([]attempt.Candidate, 0, len(usernames)*len(passwords)),
		keys:  make([]string, 0, len(usernames)*len(passwords)),
	}
	for _, u := range usernames {
		for _, p := range passwords {
			c := attempt.Candidate{Username: u, Password: p}
			key := p
			if multi {
				key = c.UsernameOr("") + "\x00" + p
			}
			s.cands = append(s.cands, c)
			s.keys = append(s.keys, key)
		}
	}
	return s
}

// without drops the entries whose key was already tried, keeping order.
func (s *listSource) without(tried []string) *listSource {
	kept := resume.FilterTried(s.keys, tried)
	out := &listSource{keys: kept, cands: make([]attempt.Candidate, 0, len(kept))}
	j := 0
	for i, k := range s.keys {
		if j < len(kept) && kept[j] == k {
			out.cands = append(out.cands, s.cands[i])
			j++
		}
	}
	return out
}

func (s *listSource) Size() *big.Int { return big.NewInt(int64(len(s.cands))) }

func (s *listSource) Candidates(start, end *big.Int) (iter.Seq[attempt.Candidate], error) {
	lo, hi := int(start.Int64()), int(end.Int64())
	if lo < 0 || lo > hi || hi > len(s.cands) {
		return nil, keyspace.ErrInvalidRange
	}
	slice := s.cands[lo:hi]
	return func(yield func(attempt.Candidate) bool) {
		for _, c := range slice {
			if !yield(c) {
				return
			}
		}
	}, nil
}

// passwordSource generates passwords of one length for a fixed username.
type passwordSource struct {
	username *string
	charset  keyspace.Charset
	length   int
}

func (s *passwordSource) Size() *big.Int { return keyspace.Size(s.charset, s.length) }

func (s *passwordSource) Candidates(start, end *big.Int) (iter.Seq[attempt.Candidate], error) {
	seq, err := keyspace.RangeSequence(start, end, s.charset, s.length)
	if err != nil {
		return nil, err
	}
	return func(yield func(attempt.Candidate) bool) {
		for pw := range seq {
			if !yield(attempt.Candidate{Username: s.username, Password: pw}) {
				return
			}
		}
	}, nil
}

// usernameSource generates usernames of one length, each tried against the
// whole password list. Index i is username i/|passwords|, password
// i mod |passwords|.
type usernameSource struct {
	passwords []string
	charset   keyspace.Charset
	length    int
}

func (s *usernameSource) Size() *big.Int {
	return new(big.Int).Mul(keyspace.Size(s.charset, s.length), big.NewInt(int64(len(s.passwords))))
}

func (s *usernameSource) Candidates(start, end *big.Int) (iter.Seq[attempt.Candidate], error) {
	if len(s.passwords) == 0 || start.Sign() < 0 || start.Cmp(end) > 0 || end.Cmp(s.Size()) > 0 {
		return nil, keyspace.ErrInvalidRange
	}

	n := big.NewInt(int64(len(s.passwords)))
	uStart, off := new(big.Int).QuoRem(start, n, new(big.Int))
	uEnd := new(big.Int).Add(end, n)
	uEnd.Sub(uEnd, big.NewInt(1)).Quo(uEnd, n)

	seq, err := keyspace.RangeSequence(uStart, uEnd, s.charset, s.length)
	if err != nil {
		return nil, err
	}
	count := new(big.Int).Sub(end, start)
	first := int(off.Int64())

	return func(yield func(attempt.Candidate) bool) {
		remaining := new(big.Int).Set(count)
		one := big.NewInt(1)
		from := first
		for u := range seq {
			for _, pw := range s.passwords[from:] {
				if remaining.Sign() == 0 {
					return
				}
				if !yield(attempt.WithUsername(u, pw)) {
					return
				}
				remaining.Sub(remaining, one)
			}
			from = 0
		}
	}, nil
}

// pairSource generates username and password pairs of fixed lengths over
// the combined index space.
type pairSource struct {
	charset     keyspace.Charset
	usernameLen int
	passwordLen int
}

func (s *pairSource) Size() *big.Int {
	return keyspace.Size(s.charset, s.usernameLen+s.passwordLen)
}

func (s *pairSource) Candidates(start, end *big.Int) (iter.Seq[attempt.Candidate], error) {
	seq, err := keyspace.PairSequence(start, end, s.charset, s.usernameLen, s.passwordLen)
	if err != nil {
		return nil, err
	}
	return func(yield func(attempt.Candidate) bool) {
		for u, pw := range seq {
			if !yield(attempt.WithUsername(u, pw)) {
				return
			}
		}
	}, nil
}
