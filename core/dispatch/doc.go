// Package dispatch implements the matching engine that assigns a pet medical
// emergency to one of several available veterinarians.
//
// It guarantees that at most one vet holds an active offer per request at a
// time, bounds each offer with a response window, escalates through a second
// round over timed-out candidates, and resolves concurrent acceptances across
// requests deterministically.
//
// Key components:
//   - Service: inbound boundary; persists requests, ranks candidates, starts
//     sessions and routes accept/reject/cancel actions.
//   - Session: the live matching process for one request; owns the candidate
//     queue, cursor, round counter and both timers.
//   - Registry: process-wide collection of active sessions, with a secondary
//     index from vet to sessions currently offering to them.
//   - HistoryRecorder: appends immutable audit entries to the persisted
//     request.
//
// Matching flow:
//  1. Rank assignable vets by distance (manual strategy pins a single vet)
//  2. Offer to the queue head with a bounded response window
//  3. Advance on rejection, timeout or elsewhere-acceptance
//  4. Escalate once over timeout-only candidates, then cancel
//  5. Finalize the assignment on acceptance, pre-empting other sessions
//
// All collaborators are decoupled via interfaces; tests run against in-memory
// stores and a recording notifier.
package dispatch
