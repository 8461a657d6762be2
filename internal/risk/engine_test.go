package risk

import (
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"futures-trader/internal/events"
	"futures-trader/internal/market"
	"futures-trader/internal/strategy"
)

type fakeAccount struct {
	equity    float64
	known     bool
	margin    float64
	marginErr error
}

func (a *fakeAccount) Equity() (float64, bool) { return a.equity, a.known }
func (a *fakeAccount) MarginRequirement(string, int) (float64, error) {
	return a.margin, a.marginErr
}

func newTestEngine(acct Account, bus *events.Bus) *Engine {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewEngine(Config{InitialMaxDailyLoss: 1000}, acct, bus, log)
}

func TestSizePositionLiteralCases(t *testing.T) {
	e := newTestEngine(&fakeAccount{}, nil)

	assert.Equal(t, 0, e.SizePosition(0, false, 0.9), "unknown equity fails closed")
	assert.Equal(t, 0, e.SizePosition(-500, true, 0.9))
	assert.Equal(t, 0, e.SizePosition(0, true, 0.9))

	// base=2, effective=max(0.5,0.6)=0.6, floor(2*0.6)=1, min 1 -> 1
	assert.Equal(t, 1, e.SizePosition(25000, true, 0.5))
	// base=0 is still forced to 1 contract
	assert.Equal(t, 1, e.SizePosition(5000, true, 0.9))
	// base=5, floor(5*0.9)=4
	assert.Equal(t, 4, e.SizePosition(50000, true, 0.9))
	// confidence floor applies: base=10, floor(10*0.6)=6
	assert.Equal(t, 6, e.SizePosition(100000, true, 0.1))
}

func TestSizeByVolatility(t *testing.T) {
	e := newTestEngine(&fakeAccount{}, nil)

	assert.Equal(t, 0, e.SizeByVolatility(0, false, 1.0, 0.9))
	// base = floor(50000/(2*1000)) = 25, floor(25*0.9) = 22
	assert.Equal(t, 22, e.SizeByVolatility(50000, true, 2.0, 0.9))
	// volatility floored at 0.01
	assert.Equal(t, 1, e.SizeByVolatility(25, true, 0, 0.9))
}

func TestPnlRatchetAndBreach(t *testing.T) {
	e := newTestEngine(&fakeAccount{}, nil)

	e.OnPnlUpdate(5000)
	assert.Equal(t, 1500.0, e.CurrentMaxDailyLoss(), "budget ratchets to pnl*0.3")

	e.OnPnlUpdate(2000)
	assert.Equal(t, 1000.0, e.CurrentMaxDailyLoss(), "ratchet never drops below initial")

	e.OnPnlUpdate(-500)
	assert.Equal(t, 1000.0, e.CurrentMaxDailyLoss(), "negative pnl restores initial")
	assert.False(t, e.CooldownActive())

	e.OnPnlUpdate(-1000)
	assert.True(t, e.CooldownActive(), "breach at pnl <= -limit")
}

func TestBreachTransitionFiresOnce(t *testing.T) {
	bus := events.NewBus()
	ch, cancel := bus.Subscribe(8)
	defer cancel()

	e := newTestEngine(&fakeAccount{}, bus)
	e.OnPnlUpdate(-1200)
	e.OnPnlUpdate(-1200)
	e.OnPnlUpdate(-1300)

	var breaches int
	for {
		select {
		case evt := <-ch:
			if evt.Type == events.RiskBreach {
				breaches++
			}
			continue
		default:
		}
		break
	}
	assert.Equal(t, 1, breaches, "repeated updates below threshold publish a single breach")
	assert.True(t, e.CooldownActive())
}

func TestCooldownRecovery(t *testing.T) {
	bus := events.NewBus()
	ch, cancel := bus.Subscribe(8)
	defer cancel()

	e := newTestEngine(&fakeAccount{}, bus)
	e.OnPnlUpdate(-1200)
	require.True(t, e.CooldownActive())

	e.OnPnlUpdate(-600)
	assert.True(t, e.CooldownActive(), "not yet past half the initial budget")

	e.OnPnlUpdate(-400)
	assert.False(t, e.CooldownActive(), "recovered past -initial*0.5")

	var recovered int
	for {
		select {
		case evt := <-ch:
			if evt.Type == events.RiskRecovered {
				recovered++
			}
			continue
		default:
		}
		break
	}
	assert.Equal(t, 1, recovered)
}

func TestValidateTrade(t *testing.T) {
	sig := &strategy.Signal{Strategy: "ICT", Direction: market.Buy, ContractID: "MES"}

	t.Run("allowed", func(t *testing.T) {
		e := newTestEngine(&fakeAccount{equity: 50000, known: true, margin: 2000}, nil)
		rej, err := e.ValidateTrade(sig, 2)
		require.NoError(t, err)
		assert.Nil(t, rej)
	})

	t.Run("cooldown", func(t *testing.T) {
		e := newTestEngine(&fakeAccount{equity: 50000, known: true}, nil)
		e.OnPnlUpdate(-1500)
		rej, err := e.ValidateTrade(sig, 2)
		require.NoError(t, err)
		require.NotNil(t, rej)
		assert.Contains(t, rej.Reason, "cooldown")
		assert.Same(t, sig, rej.Signal)
	})

	t.Run("insufficient margin", func(t *testing.T) {
		e := newTestEngine(&fakeAccount{equity: 1000, known: true, margin: 2640}, nil)
		rej, err := e.ValidateTrade(sig, 2)
		require.NoError(t, err)
		require.NotNil(t, rej)
		assert.Contains(t, rej.Reason, "insufficient margin")
	})

	t.Run("transient fetch failure is an error, not a rejection", func(t *testing.T) {
		e := newTestEngine(&fakeAccount{known: false}, nil)
		rej, err := e.ValidateTrade(sig, 2)
		assert.Error(t, err)
		assert.Nil(t, rej)

		e = newTestEngine(&fakeAccount{equity: 50000, known: true, marginErr: errors.New("down")}, nil)
		rej, err = e.ValidateTrade(sig, 2)
		assert.Error(t, err)
		assert.Nil(t, rej)
	})
}

func TestResetDaily(t *testing.T) {
	e := newTestEngine(&fakeAccount{}, nil)
	e.OnPnlUpdate(-1500)
	require.True(t, e.CooldownActive())

	e.ResetDaily()
	assert.False(t, e.CooldownActive())
	assert.Equal(t, 0.0, e.CurrentPnl())
	assert.Equal(t, 1000.0, e.CurrentMaxDailyLoss())
}
