package solana

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// SPL Token instruction opcodes this parser understands.
const (
	tokenInstructionTransfer        = 3
	tokenInstructionTransferChecked = 12
)

// ParsedTransfer is one SPL token transfer recovered from a transaction.
type ParsedTransfer struct {
	Source      solana.PublicKey
	Destination solana.PublicKey
	Authority   solana.PublicKey
	Mint        solana.PublicKey
	Amount      uint64 // token micro-units

	// Position within the transaction: OuterIndex is the top-level
	// instruction index; InnerIndex is -1 for top-level transfers.
	OuterIndex int
	InnerIndex int
}

// ParseTransfers extracts every SPL Token / Token-2022 transfer from a
// fetched transaction: top-level instructions first in index order, then
// inner instruction groups in outer-index order. Instructions that cannot be
// decoded as transfers are skipped.
//
// Plain Transfer instructions (opcode 3) do not carry the mint; it is
// recovered from the post token balance record of the source account, or of
// the destination when the source account was emptied and closed.
func ParseTransfers(msg *solana.Message, meta *rpc.TransactionMeta) []ParsedTransfer {
	if msg == nil {
		return nil
	}

	accounts := resolveAccounts(msg, meta)
	mints := mintsByAccountIndex(meta)

	var transfers []ParsedTransfer
	for i, inst := range msg.Instructions {
		if t, ok := decodeTransfer(inst, accounts, mints); ok {
			t.OuterIndex = i
			t.InnerIndex = -1
			transfers = append(transfers, t)
		}
	}

	if meta != nil {
		for _, group := range meta.InnerInstructions {
			for j, inner := range group.Instructions {
				// Inner instructions come back as the rpc package's compiled
				// form; field types line up with the message form.
				inst := solana.CompiledInstruction{
					ProgramIDIndex: inner.ProgramIDIndex,
					Accounts:       inner.Accounts,
					Data:           inner.Data,
				}
				if t, ok := decodeTransfer(inst, accounts, mints); ok {
					t.OuterIndex = int(group.Index)
					t.InnerIndex = j
					transfers = append(transfers, t)
				}
			}
		}
	}

	return transfers
}

// resolveAccounts builds the full account table: the message's static keys
// followed by addresses loaded from lookup tables (writable, then readonly).
func resolveAccounts(msg *solana.Message, meta *rpc.TransactionMeta) []solana.PublicKey {
	accounts := make([]solana.PublicKey, 0, len(msg.AccountKeys))
	accounts = append(accounts, msg.AccountKeys...)
	if meta != nil {
		accounts = append(accounts, meta.LoadedAddresses.Writable...)
		accounts = append(accounts, meta.LoadedAddresses.ReadOnly...)
	}
	return accounts
}

func mintsByAccountIndex(meta *rpc.TransactionMeta) map[uint16]solana.PublicKey {
	if meta == nil {
		return nil
	}
	mints := make(map[uint16]solana.PublicKey, len(meta.PostTokenBalances))
	for _, balance := range meta.PostTokenBalances {
		mints[balance.AccountIndex] = balance.Mint
	}
	return mints
}

func decodeTransfer(inst solana.CompiledInstruction, accounts []solana.PublicKey, mints map[uint16]solana.PublicKey) (ParsedTransfer, bool) {
	if int(inst.ProgramIDIndex) >= len(accounts) {
		return ParsedTransfer{}, false
	}
	program := accounts[inst.ProgramIDIndex]
	if !program.Equals(solana.TokenProgramID) && !program.Equals(solana.Token2022ProgramID) {
		return ParsedTransfer{}, false
	}
	if len(inst.Data) == 0 {
		return ParsedTransfer{}, false
	}

	account := func(pos int) (solana.PublicKey, uint16, bool) {
		if pos >= len(inst.Accounts) {
			return solana.PublicKey{}, 0, false
		}
		idx := inst.Accounts[pos]
		if int(idx) >= len(accounts) {
			return solana.PublicKey{}, 0, false
		}
		return accounts[idx], idx, true
	}

	switch inst.Data[0] {
	case tokenInstructionTransfer:
		// [opcode u8][amount u64 LE]; accounts: source, destination, authority
		if len(inst.Data) < 9 {
			return ParsedTransfer{}, false
		}
		source, sourceIdx, ok := account(0)
		if !ok {
			return ParsedTransfer{}, false
		}
		dest, destIdx, ok := account(1)
		if !ok {
			return ParsedTransfer{}, false
		}
		authority, _, ok := account(2)
		if !ok {
			return ParsedTransfer{}, false
		}
		mint, ok := mints[sourceIdx]
		if !ok {
			if mint, ok = mints[destIdx]; !ok {
				return ParsedTransfer{}, false
			}
		}
		return ParsedTransfer{
			Source:      source,
			Destination: dest,
			Authority:   authority,
			Mint:        mint,
			Amount:      binary.LittleEndian.Uint64(inst.Data[1:9]),
		}, true

	case tokenInstructionTransferChecked:
		// [opcode u8][amount u64 LE][decimals u8]; accounts: source, mint,
		// destination, authority
		if len(inst.Data) < 10 {
			return ParsedTransfer{}, false
		}
		source, _, ok := account(0)
		if !ok {
			return ParsedTransfer{}, false
		}
		mint, _, ok := account(1)
		if !ok {
			return ParsedTransfer{}, false
		}
		dest, _, ok := account(2)
		if !ok {
			return ParsedTransfer{}, false
		}
		authority, _, ok := account(3)
		if !ok {
			return ParsedTransfer{}, false
		}
		return ParsedTransfer{
			Source:      source,
			Destination: dest,
			Authority:   authority,
			Mint:        mint,
			Amount:      binary.LittleEndian.Uint64(inst.Data[1:9]),
		}, true
	}

	return ParsedTransfer{}, false
}

// ExtractMintTransfers keeps only transfers of the given mint.
func ExtractMintTransfers(transfers []ParsedTransfer, mint solana.PublicKey) []ParsedTransfer {
	var out []ParsedTransfer
	for _, t := range transfers {
		if t.Mint.Equals(mint) {
			out = append(out, t)
		}
	}
	return out
}

// FindByDestination keeps only transfers into the given token account.
func FindByDestination(transfers []ParsedTransfer, dest solana.PublicKey) []ParsedTransfer {
	var out []ParsedTransfer
	for _, t := range transfers {
		if t.Destination.Equals(dest) {
			out = append(out, t)
		}
	}
	return out
}

// FindMatching returns the first transfer into dest carrying at least
// minAmount. A single transfer must cover the amount; amounts are never
// summed across transfers.
func FindMatching(transfers []ParsedTransfer, dest solana.PublicKey, minAmount uint64) (ParsedTransfer, bool) {
	for _, t := range transfers {
		if t.Destination.Equals(dest) && t.Amount >= minAmount {
			return t, true
		}
	}
	return ParsedTransfer{}, false
}
