package batch

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/suspectuso/sova-bot/internal/chain"
	"github.com/suspectuso/sova-bot/internal/wallets"
)

// checkFunding refuses to start a funding run the main account cannot pay
// for in full. Returns the gas price used for the estimate.
func (o *Orchestrator) checkFunding(ctx context.Context, n int) (*big.Int, error) {
	gasPrice, err := o.gw.GasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("funding check: %w", err)
	}
	balance, err := o.gw.Balance(ctx, o.gw.MainAddress())
	if err != nil {
		return nil, fmt.Errorf("funding check: %w", err)
	}

	perWallet := new(big.Int).Mul(new(big.Int).SetUint64(o.cfg.StandardGas), gasPrice)
	perWallet.Add(perWallet, o.cfg.FundAmount)
	need := new(big.Int).Mul(perWallet, big.NewInt(int64(n)))

	if balance.Cmp(need) < 0 {
		short := new(big.Int).Sub(need, balance)
		return nil, fmt.Errorf("%w: need %s, have %s, short %s",
			ErrInsufficientBalance,
			chain.FormatUnits(need, chain.NativeDecimals),
			chain.FormatUnits(balance, chain.NativeDecimals),
			chain.FormatUnits(short, chain.NativeDecimals),
		)
	}
	return gasPrice, nil
}

// checkSupply rejects a mint run when the token cap is already met. A token
// without a readable cap is assumed uncapped.
func (o *Orchestrator) checkSupply(ctx context.Context) error {
	maxSupply, err := chain.CallUint(ctx, o.gw, chain.MethodMaxSupply)
	if err != nil {
		o.log.Warn("max supply unavailable, skipping cap check", "error", err)
		return nil
	}
	supply, err := chain.CallUint(ctx, o.gw, chain.MethodTotalSupply)
	if err != nil {
		o.log.Warn("total supply unavailable, skipping cap check", "error", err)
		return nil
	}
	if supply.Cmp(maxSupply) >= 0 {
		return fmt.Errorf("%w: %s/%s", ErrMaxSupplyReached, supply, maxSupply)
	}
	return nil
}

func (o *Orchestrator) fund(ctx context.Context, w *wallets.ManagedWallet, gasPrice *big.Int) stepResult {
	to, err := walletAddress(w)
	if err != nil {
		return o.fail(OpFund, w, err)
	}

	rcpt, err := o.gw.SendNative(ctx, chain.NativeTx{
		From:     o.gw.MainAddress(),
		To:       to,
		Value:    o.cfg.FundAmount,
		Gas:      o.cfg.StandardGas,
		GasPrice: gasPrice,
	})
	if err != nil {
		return o.fail(OpFund, w, err)
	}

	o.log.Info("wallet funded", "wallet", w.Address, "tx", rcpt.TxHash)
	return succeeded(nil)
}

func (o *Orchestrator) mint(ctx context.Context, w *wallets.ManagedWallet) stepResult {
	if w.HasMinted {
		return skipped("already minted")
	}

	addr, err := walletAddress(w)
	if err != nil {
		return o.fail(OpMint, w, err)
	}
	gasBal, err := o.gw.Balance(ctx, addr)
	if err != nil {
		return o.fail(OpMint, w, err)
	}
	if gasBal.Sign() == 0 {
		return skipped("no gas")
	}

	var txHash string
	err = wallets.WithSigner(*w, o.gw, func(from common.Address) error {
		est, err := o.gw.EstimateGas(ctx, chain.MethodMint, from)
		if err != nil {
			return err
		}
		rcpt, err := o.gw.Send(ctx, chain.MethodMint, chain.TxOpts{
			From: from,
			Gas:  chain.ApplyMargin(est, o.cfg.GasMargin),
		})
		if err != nil {
			return err
		}
		txHash = rcpt.TxHash
		return nil
	})
	if err != nil {
		return o.fail(OpMint, w, err)
	}

	w.HasMinted = true
	w.LastMintTx = &txHash
	o.log.Info("wallet minted", "wallet", w.Address, "tx", txHash)
	return succeeded(nil)
}

func (o *Orchestrator) collectToken(ctx context.Context, w *wallets.ManagedWallet) stepResult {
	addr, err := walletAddress(w)
	if err != nil {
		return o.fail(OpCollectToken, w, err)
	}

	tokenBal, err := chain.TokenBalance(ctx, o.gw, addr)
	if err != nil {
		return o.fail(OpCollectToken, w, err)
	}
	if tokenBal.Sign() == 0 {
		return skipped("no tokens")
	}
	gasBal, err := o.gw.Balance(ctx, addr)
	if err != nil {
		return o.fail(OpCollectToken, w, err)
	}
	if gasBal.Sign() == 0 {
		return skipped("no gas")
	}

	main := o.gw.MainAddress()
	err = wallets.WithSigner(*w, o.gw, func(from common.Address) error {
		est, err := o.gw.EstimateGas(ctx, chain.MethodTransfer, from, main, tokenBal)
		if err != nil {
			return err
		}
		rcpt, err := o.gw.Send(ctx, chain.MethodTransfer, chain.TxOpts{
			From: from,
			Gas:  chain.ApplyMargin(est, o.cfg.GasMargin),
		}, main, tokenBal)
		if err != nil {
			return err
		}
		o.log.Info("tokens collected", "wallet", w.Address, "amount", tokenBal.String(), "tx", rcpt.TxHash)
		return nil
	})
	if err != nil {
		return o.fail(OpCollectToken, w, err)
	}
	return succeeded(tokenBal)
}

func (o *Orchestrator) collectGas(ctx context.Context, w *wallets.ManagedWallet) stepResult {
	addr, err := walletAddress(w)
	if err != nil {
		return o.fail(OpCollectGas, w, err)
	}

	bal, err := o.gw.Balance(ctx, addr)
	if err != nil {
		return o.fail(OpCollectGas, w, err)
	}
	if bal.Cmp(o.cfg.MinGasSweep) < 0 {
		return skipped("below sweep threshold")
	}

	gasPrice, err := o.gw.GasPrice(ctx)
	if err != nil {
		return o.fail(OpCollectGas, w, err)
	}
	fee := new(big.Int).Mul(new(big.Int).SetUint64(o.cfg.StandardGas), gasPrice)
	amount := new(big.Int).Sub(bal, chain.Scale(fee, o.cfg.GasSweepBuffer))
	if amount.Sign() <= 0 {
		return skipped("insufficient residual")
	}

	main := o.gw.MainAddress()
	err = wallets.WithSigner(*w, o.gw, func(from common.Address) error {
		rcpt, err := o.gw.SendNative(ctx, chain.NativeTx{
			From:     from,
			To:       main,
			Value:    amount,
			Gas:      o.cfg.StandardGas,
			GasPrice: gasPrice,
		})
		if err != nil {
			return err
		}
		o.log.Info("gas collected", "wallet", w.Address, "amount", amount.String(), "tx", rcpt.TxHash)
		return nil
	})
	if err != nil {
		return o.fail(OpCollectGas, w, err)
	}

	r := succeeded(amount)
	r.archive = o.drained(ctx, w, addr)
	return r
}

// drained reports whether a swept wallet has nothing left to do: it minted
// and holds no tokens.
func (o *Orchestrator) drained(ctx context.Context, w *wallets.ManagedWallet, addr common.Address) bool {
	if !w.HasMinted {
		return false
	}
	tokenBal, err := chain.TokenBalance(ctx, o.gw, addr)
	if err != nil {
		o.log.Warn("token balance for archive check", "wallet", w.Address, "error", err)
		return false
	}
	return tokenBal.Sign() == 0
}

// distributeReward sends the reward share of a collection to the reward
// recipient. A failed transfer is logged and recorded on res only.
func (o *Orchestrator) distributeReward(ctx context.Context, op Operation, res *Result) {
	res.Reward = new(big.Int)
	res.NetAmount = new(big.Int).Set(res.TotalCollected)
	if res.TotalCollected.Sign() <= 0 {
		return
	}

	reward := chain.Percent(res.TotalCollected, o.cfg.RewardPercent)
	res.Reward = reward
	res.NetAmount = new(big.Int).Sub(res.TotalCollected, reward)
	if reward.Sign() == 0 {
		return
	}

	main := o.gw.MainAddress()
	var rcpt *chain.Receipt
	var err error
	switch op {
	case OpCollectToken:
		var est uint64
		est, err = o.gw.EstimateGas(ctx, chain.MethodTransfer, main, o.cfg.RewardRecipient, reward)
		if err == nil {
			rcpt, err = o.gw.Send(ctx, chain.MethodTransfer, chain.TxOpts{
				From: main,
				Gas:  chain.ApplyMargin(est, o.cfg.GasMargin),
			}, o.cfg.RewardRecipient, reward)
		}
	case OpCollectGas:
		rcpt, err = o.gw.SendNative(ctx, chain.NativeTx{
			From:  main,
			To:    o.cfg.RewardRecipient,
			Value: reward,
			Gas:   o.cfg.StandardGas,
		})
	}

	if err != nil {
		res.RewardErr = err
		o.log.Error("reward transfer failed", "operation", op, "reward", reward.String(), "error", err)
		return
	}
	res.RewardTx = rcpt.TxHash
	o.log.Info("reward sent", "operation", op, "reward", reward.String(), "recipient", o.cfg.RewardRecipient.Hex(), "tx", rcpt.TxHash)
}
