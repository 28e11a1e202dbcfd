package utils

import "golang.org/x/crypto/bcrypt"

// HashAccessKey derives the bcrypt digest stored in OPERATOR_KEYS for an
// operator's access key.  Cost trades hashing time against brute-force
// resistance; bcrypt.DefaultCost is fine for provisioning.
func HashAccessKey(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyAccessKey reports whether plain matches the stored digest.  The
// comparison runs in constant time inside bcrypt.
func VerifyAccessKey(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
