// Package webhook implements secure HTTP webhook endpoints with HMAC-SHA256 verification.
//
// Each endpoint authenticates inbound notifications with a pre-shared secret
// and, on success, launches its configured script asynchronously. The HTTP
// response never waits for the script to finish.
//
// # Security Model
//
// - HMAC-SHA256 signatures verified with hmac.Equal (constant-time comparison)
// - Body size limits enforced to bound verification cost (default 32 KiB)
// - All verification failures collapse to one opaque 401; the internal kind
//   (malformed header, bad hex, digest mismatch) is logged server-side only,
//   so callers get no oracle about which step failed
// - Missing signature header is 400 (structural, no secret involved)
// - Missing secret or script is 500, never 401
// - Request logging excludes payloads and secrets
// - No replay protection: deliveries are verified statelessly; callers that
//   need replay windows must layer them on top
//
// # Configuration
//
//	listen: "127.0.0.1:8000"
//	endpoints:
//	  - path: /hooks/deploy
//	    script: /usr/local/bin/deploy.sh
//	    secret: ${WEBHOOK_SECRET}
//	    signature_header: X-Hub-Signature-256
//	    max_body_size: 32KB
//	    timeout: 2m
//
// # Request Flow
//
//  1. HTTP POST arrives at configured path
//  2. Body read under the size limit (reject with 413 if too large)
//  3. Signature header extracted (reject with 400 if absent)
//  4. HMAC-SHA256 computed over the raw body, constant-time compared
//     against the claimed digest (reject with 401 on any failure)
//  5. Script launched asynchronously with the payload on stdin
//  6. 202 Accepted returned with the delivery_id
package webhook
