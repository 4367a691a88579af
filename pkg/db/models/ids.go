package models

import "github.com/google/uuid"

// ensureID assigns a fresh UUID when the caller did not choose one.
// Postgres also defaults ids via gen_random_uuid(); sqlite has no equivalent.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
