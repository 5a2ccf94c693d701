package repository

import (
	"encoding/json"
	"fmt"

	"taiyari/internal/entities"
)

// Tenants are stored whole as one JSON document per row, so every write
// replaces the record in a single statement.

func encodeTenant(t *entities.Tenant) ([]byte, error) {
	doc, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("encode tenant %s: %w", t.ID, err)
	}
	return doc, nil
}

func decodeTenant(id string, doc []byte) (*entities.Tenant, error) {
	var t entities.Tenant
	if err := json.Unmarshal(doc, &t); err != nil {
		return nil, fmt.Errorf("decode tenant %s: %w", id, err)
	}
	t.ID = id
	return &t, nil
}

func encodeMessages(msgs []entities.Message) ([]byte, error) {
	if msgs == nil {
		msgs = []entities.Message{}
	}
	return json.Marshal(msgs)
}

func decodeMessages(doc []byte) ([]entities.Message, error) {
	var msgs []entities.Message
	if err := json.Unmarshal(doc, &msgs); err != nil {
		return nil, fmt.Errorf("decode transcript messages: %w", err)
	}
	return msgs, nil
}
