package utxo

import (
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func txPaying(script []byte, value int64, in wire.OutPoint) *wire.MsgTx {
	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: in})
	tx.AddTxOut(&wire.TxOut{Value: value, PkScript: script})
	return tx
}

// TestSelectS1 is scenario S1 from the swap-script contract: six
// transactions pay a shared script at confirmations {0, 100, 101, 102, 103,
// 0}; tx5 confirmed-spends tx4's vout 0 and tx6 pending-spends tx3's vout 0.
// Exactly {tx1, tx2, tx3} must survive, in insertion order.
func TestSelectS1(t *testing.T) {
	ourScript := []byte{0xaa, 0xaa}
	otherScript := []byte{0xbb, 0xbb}

	tx1 := txPaying(ourScript, 1000, wire.OutPoint{})
	tx2 := txPaying(ourScript, 2000, wire.OutPoint{})
	tx3 := txPaying(ourScript, 5000, wire.OutPoint{})
	tx4 := txPaying(ourScript, 4500, wire.OutPoint{})

	tx5 := wire.NewMsgTx(2) // confirmed spend of tx4 vout 0
	tx5.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Hash: tx4.TxHash(), Index: 0}})
	tx5.AddTxOut(&wire.TxOut{Value: 4000, PkScript: otherScript})

	tx6 := wire.NewMsgTx(2) // pending spend of tx3 vout 0
	tx6.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Hash: tx3.TxHash(), Index: 0}})
	tx6.AddTxOut(&wire.TxOut{Value: 4950, PkScript: otherScript})

	heights := Heights{
		tx1.TxHash(): 0,
		tx2.TxHash(): 100,
		tx3.TxHash(): 101,
		tx4.TxHash(): 102,
		tx5.TxHash(): 103,
		tx6.TxHash(): 0,
	}

	got := Select([]*wire.MsgTx{tx1, tx2, tx3, tx4, tx5, tx6}, heights, ourScript)

	require.Len(t, got, 3)
	require.Equal(t, tx1.TxHash(), got[0].OutPoint.Hash)
	require.Equal(t, tx2.TxHash(), got[1].OutPoint.Hash)
	require.Equal(t, tx3.TxHash(), got[2].OutPoint.Hash)
}

func TestSelectFromStatusEquivalence(t *testing.T) {
	ourScript := []byte{0xaa, 0xaa}
	otherScript := []byte{0xbb, 0xbb}

	tx1 := txPaying(ourScript, 1000, wire.OutPoint{})
	tx2 := txPaying(ourScript, 2000, wire.OutPoint{})

	spend := wire.NewMsgTx(2)
	spend.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Hash: tx1.TxHash(), Index: 0}})
	spend.AddTxOut(&wire.TxOut{Value: 900, PkScript: otherScript})

	got := SelectFromStatus([]TxStatus{
		{Tx: tx1, Confirmed: true},
		{Tx: tx2, Confirmed: true},
		{Tx: spend, Confirmed: true},
	}, ourScript)

	require.Len(t, got, 1)
	require.Equal(t, tx2.TxHash(), got[0].OutPoint.Hash)
}
