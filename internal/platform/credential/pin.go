package credential

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"

	domainagg "github.com/yungbote/enrollment-backend/internal/domain/aggregates"
)

const (
	PINDigits          = 4
	DefaultMaxAttempts = 10
)

var pinSpace = big.NewInt(10000)

// ExistsFunc reports whether token is already taken in the target scope.
type ExistsFunc func(ctx context.Context, token string) (bool, error)

// Generator draws uniformly distributed 4-digit PINs and retries on
// collision up to MaxAttempts times.
type Generator struct {
	Rand        io.Reader
	MaxAttempts int
}

func NewGenerator() *Generator {
	return &Generator{Rand: rand.Reader, MaxAttempts: DefaultMaxAttempts}
}

// GenerateUnique returns a PIN matching ^\d{4}$ that exists reports as free.
// Errors from exists propagate unchanged; running out of attempts returns a
// CodeResourceExhausted error naming scope.
func (g *Generator) GenerateUnique(ctx context.Context, scope string, exists ExistsFunc) (string, error) {
	const op = "Credential.GenerateUnique"
	if exists == nil {
		return "", domainagg.NewError(domainagg.CodeInternal, op, "exists check is required", nil)
	}
	src := g.Rand
	if src == nil {
		src = rand.Reader
	}
	attempts := g.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := rand.Int(src, pinSpace)
		if err != nil {
			return "", domainagg.Wrap(domainagg.CodeInternal, op, err)
		}
		pin := fmt.Sprintf("%0*d", PINDigits, n.Int64())
		taken, err := exists(ctx, pin)
		if err != nil {
			return "", err
		}
		if !taken {
			return pin, nil
		}
	}
	return "", domainagg.NewError(
		domainagg.CodeResourceExhausted,
		op,
		fmt.Sprintf("no free pin in %s after %d attempts", scope, attempts),
		nil,
	)
}
