// Package authcore is the authentication and session-lifecycle core for the
// Shelterly services: credential verification with argon2id, short-lived
// JWT access tokens, refresh-token rotation with revocation, a TOTP second
// factor with encrypted secrets and single-use backup codes, account
// lockout, and per-operation rate limiting.
//
// The package is transport- and storage-agnostic. Persistence is supplied
// through the UserStore, ShelterDirectory, and session.Store contracts;
// memstore provides in-memory implementations and redisstore a Redis-backed
// session store. Construct an Engine with New and call its operations
// directly from whatever handler layer you run.
package authcore
