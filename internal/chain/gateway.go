// Package chain's production Gateway submits native-asset transfers over
// an ordered list of JSON-RPC endpoints using go-ethereum's ethclient and
// a keystore-held signing key, the way geth's own internal/ethapi talks
// to accounts.Manager rather than holding raw private keys (§4.6).
package chain

import (
	"context"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	gmetrics "github.com/ethereum/go-ethereum/metrics"
	"golang.org/x/time/rate"

	"github.com/contribpool/poolcore/internal/amount"
)

var addressRE = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

var (
	submitOK   = gmetrics.NewRegisteredCounter("chain/submit/ok", nil)
	submitFail = gmetrics.NewRegisteredCounter("chain/submit/fail", nil)
)

// Endpoint is one JSON-RPC URL tried in order by Submit, with its own
// outbound pacing so a single slow endpoint can't starve the others'
// budget (§9's design note on CG endpoint lists).
type Endpoint struct {
	URL     string
	limiter *rate.Limiter
}

// NewEndpoint builds an Endpoint allowing at most ratePerSec submissions
// per second, bursting up to burst.
func NewEndpoint(url string, ratePerSec float64, burst int) Endpoint {
	return Endpoint{URL: url, limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst)}
}

// Gateway is the production chain.Port, fanning out over Endpoints in
// order and signing with a key held in a go-ethereum keystore.
type Gateway struct {
	endpoints []Endpoint
	ks        *keystore.KeyStore
	account   accounts.Account
	passwd    string
	chainID   *big.Int
	log       log.Logger
}

// Config wires up a Gateway.
type Config struct {
	Endpoints      []Endpoint
	KeystorePath   string
	AccountAddress string
	Passphrase     string
	ChainID        int64
}

func NewGateway(cfg Config) (*Gateway, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("chain: at least one endpoint is required")
	}
	ks := keystore.NewKeyStore(cfg.KeystorePath, keystore.StandardScryptN, keystore.StandardScryptP)
	addr := common.HexToAddress(cfg.AccountAddress)
	account, err := ks.Find(accounts.Account{Address: addr})
	if err != nil {
		return nil, fmt.Errorf("chain: locate signing account: %w", err)
	}
	return &Gateway{
		endpoints: cfg.Endpoints,
		ks:        ks,
		account:   account,
		passwd:    cfg.Passphrase,
		chainID:   big.NewInt(cfg.ChainID),
		log:       log.New("component", "chaingateway"),
	}, nil
}

// Submit implements Port (§4.6): validate the address, then try each
// endpoint in order, returning the first acknowledged tx id or the last
// failure verbatim on exhaustion.
func (g *Gateway) Submit(ctx context.Context, toAddress string, amt amount.Amount) (string, error) {
	if !addressRE.MatchString(toAddress) {
		return "", fmt.Errorf("chain: invalid destination address %q", toAddress)
	}

	wei, ok := toWei(amt)
	if !ok {
		return "", fmt.Errorf("chain: amount %s does not convert to a whole base-unit quantity", amt)
	}

	var lastErr error
	for _, ep := range g.endpoints {
		waitCtx, cancel := context.WithTimeout(ctx, quiesce)
		err := ep.limiter.Wait(waitCtx)
		cancel()
		if err != nil {
			lastErr = fmt.Errorf("rate limit wait on %s: %w", ep.URL, err)
			continue
		}
		txID, err := g.submitVia(ctx, ep, toAddress, wei)
		if err != nil {
			g.log.Warn("submit failed on endpoint", "endpoint", ep.URL, "err", err)
			submitFail.Inc(1)
			lastErr = err
			continue
		}
		submitOK.Inc(1)
		return txID, nil
	}
	return "", fmt.Errorf("chain: all endpoints exhausted: %w", lastErr)
}

func (g *Gateway) submitVia(ctx context.Context, ep Endpoint, toAddress string, wei *big.Int) (string, error) {
	client, err := ethclient.DialContext(ctx, ep.URL)
	if err != nil {
		return "", fmt.Errorf("dial %s: %w", ep.URL, err)
	}
	defer client.Close()

	opts, err := bind.NewKeyStoreTransactorWithChainID(g.ks, g.account, g.chainID)
	if err != nil {
		return "", fmt.Errorf("build transactor: %w", err)
	}
	opts.Context = ctx

	nonce, err := client.PendingNonceAt(ctx, g.account.Address)
	if err != nil {
		return "", fmt.Errorf("fetch nonce: %w", err)
	}
	gasTipCap, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		return "", fmt.Errorf("suggest tip cap: %w", err)
	}
	head, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("fetch head: %w", err)
	}
	gasFeeCap := new(big.Int).Add(gasTipCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	to := common.HexToAddress(toAddress)
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   g.chainID,
		Nonce:     nonce,
		GasTipCap: gasTipCap,
		GasFeeCap: gasFeeCap,
		Gas:       21000,
		To:        &to,
		Value:     wei,
	})

	signed, err := g.ks.SignTx(g.account, tx, g.chainID)
	if err != nil {
		return "", fmt.Errorf("sign tx: %w", err)
	}
	if err := client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send tx: %w", err)
	}
	return signed.Hash().Hex(), nil
}

// toWei scales a to base units (10^Scale per token) exactly, by shifting
// its decimal digits rather than going through a binary float.
func toWei(a amount.Amount) (*big.Int, bool) {
	whole, frac, _ := strings.Cut(a.String(), ".")
	if len(frac) > amount.Scale {
		return nil, false
	}
	frac += strings.Repeat("0", amount.Scale-len(frac))
	return new(big.Int).SetString(whole+frac, 10)
}

// quiesce bounds how long Submit waits on a single limiter before giving
// up on that endpoint and moving to the next one.
const quiesce = 5 * time.Second

var _ Port = (*Gateway)(nil)
