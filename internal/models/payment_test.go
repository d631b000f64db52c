package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"
)

func TestMakeReference(t *testing.T) {
	ref := MakeReference("a1b2c3d4-e5f6-7890-abcd-ef0123456789")
	assert.Equal(t, "PAY-A1B2C3D4", ref)

	// Короткий id не паникует
	assert.Equal(t, "PAY-ABC", MakeReference("abc"))
}

func TestMakeReference_Stable(t *testing.T) {
	id := "a1b2c3d4-e5f6-7890-abcd-ef0123456789"
	assert.Equal(t, MakeReference(id), MakeReference(id))
}

func TestPaymentStatusIsTerminal(t *testing.T) {
	terminal := []PaymentStatus{PaymentStatusCompleted, PaymentStatusRejected, PaymentStatusAbandoned}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), string(s))
	}

	for _, s := range NonTerminalStatuses() {
		assert.False(t, s.IsTerminal(), string(s))
	}
}

func TestGatewayRef(t *testing.T) {
	p := &Payment{TransactionID: "txn-1"}
	assert.Equal(t, "txn-1", p.GatewayRef())

	// Metadata имеет приоритет над колонкой
	p.Metadata = datatypes.JSONMap{"ref_payco": "987654"}
	assert.Equal(t, "987654", p.GatewayRef())

	empty := &Payment{}
	assert.Equal(t, "", empty.GatewayRef())
}

func TestMetaString(t *testing.T) {
	p := &Payment{}
	assert.Equal(t, "", p.MetaString("customer_id"))

	p.Metadata = datatypes.JSONMap{"customer_id": "cus_1", "attempts": 3}
	assert.Equal(t, "cus_1", p.MetaString("customer_id"))
	// Нестроковое значение не приводится
	assert.Equal(t, "", p.MetaString("attempts"))
}
