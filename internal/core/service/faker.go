package service

import "github.com/yndnr/authmesh-go/pkg/crypto/srp"

// faker answers failed identifications with a challenge that looks like
// a real one: a salt that is stable per identity and a nonce drawn like a
// real host nonce.
type faker struct {
	pepper []byte
}

func newFaker(pepper []byte) *faker {
	return &faker{pepper: append([]byte(nil), pepper...)}
}

// enabled reports whether a pepper is configured. Without one, failed
// identifications get a plain rejection.
func (f *faker) enabled() bool {
	return f != nil && len(f.pepper) > 0
}

// challenge returns the fake salt and nonce for identity. The salt is
// always srp.SaltSize bytes, like an enrolled one, whatever the pepper length.
func (f *faker) challenge(identity uint64) (salt, nonce []byte, err error) {
	salt, err = srp.FakeSalt(identity, f.pepper, 0)
	if err != nil {
		return nil, nil, err
	}
	nonce, err = srp.FakeNonce()
	if err != nil {
		return nil, nil, err
	}
	return salt, nonce, nil
}

func (f *faker) destroy() {
	if f == nil {
		return
	}
	clear(f.pepper)
	f.pepper = nil
}
