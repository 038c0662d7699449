package registry

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/Miloris/stock-exchange-simulation/internal/common"
)

var (
	ErrUnknownInvestor = errors.New("unknown investor")
	ErrBadPassword     = errors.New("bad password")
	ErrAlreadyLoggedIn = errors.New("investor already has an active session")
)

// Account is one investor's state. Cash and positions change only as fill
// side effects applied by the portal writer.
type Account struct {
	ID        uint64
	password  string
	Cash      decimal.Decimal
	Positions map[string]int64 // ticker -> signed quantity
	active    bool             // one live session at a time
}

// Seed is the roster entry an account starts from.
type Seed struct {
	ID        uint64
	Password  string
	Cash      decimal.Decimal
	Positions map[string]int64
}

// AccountRegistry maps investor ids to accounts.
type AccountRegistry struct {
	accounts map[uint64]*Account
}

func NewAccountRegistry(roster []Seed) *AccountRegistry {
	accounts := make(map[uint64]*Account, len(roster))
	for _, seed := range roster {
		positions := make(map[string]int64, len(seed.Positions))
		for ticker, qty := range seed.Positions {
			positions[ticker] = qty
		}
		accounts[seed.ID] = &Account{
			ID:        seed.ID,
			password:  seed.Password,
			Cash:      seed.Cash,
			Positions: positions,
		}
	}
	return &AccountRegistry{accounts: accounts}
}

func (r *AccountRegistry) Lookup(id uint64) (*Account, bool) {
	a, ok := r.accounts[id]
	return a, ok
}

// AcquireSession authenticates and binds the single active session for an
// investor. The caller pairs it with ReleaseSession on disconnect.
func (r *AccountRegistry) AcquireSession(id uint64, password string) error {
	account, ok := r.accounts[id]
	if !ok {
		return ErrUnknownInvestor
	}
	if account.password != password {
		return ErrBadPassword
	}
	if account.active {
		return ErrAlreadyLoggedIn
	}
	account.active = true
	return nil
}

func (r *AccountRegistry) ReleaseSession(id uint64) {
	if account, ok := r.accounts[id]; ok {
		account.active = false
	}
}

// Cash returns the investor's cash balance. Unknown investors read as zero.
func (r *AccountRegistry) Cash(id uint64) decimal.Decimal {
	if account, ok := r.accounts[id]; ok {
		return account.Cash
	}
	return decimal.Zero
}

// Position returns the investor's signed position in a ticker.
func (r *AccountRegistry) Position(id uint64, ticker string) int64 {
	if account, ok := r.accounts[id]; ok {
		return account.Positions[ticker]
	}
	return 0
}

// ApplyFill settles one side of a trade: buyers pay price*size and gain
// size units, sellers the reverse.
func (r *AccountRegistry) ApplyFill(id uint64, ticker string, side common.Side, price float32, size uint32) {
	account, ok := r.accounts[id]
	if !ok {
		return
	}
	notional := decimal.NewFromFloat32(price).Mul(decimal.NewFromInt(int64(size)))
	if side == common.Buy {
		account.Cash = account.Cash.Sub(notional)
		account.Positions[ticker] += int64(size)
	} else {
		account.Cash = account.Cash.Add(notional)
		account.Positions[ticker] -= int64(size)
	}
}
