package identity

import (
	"testing"
)

func BenchmarkPasswordHasher_Hash(b *testing.B) {
	// RFC 9106 recommended parameters
	hasher := NewPasswordHasher(64*1024, 1, 4, 16, 32)
	password := "correct-horse-battery-staple"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := hasher.Hash(password); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkGeneratePassword(b *testing.B) {
	for i := 0; i < b.N; i++ {
		if _, err := GeneratePassword(16); err != nil {
			b.Fatal(err)
		}
	}
}
