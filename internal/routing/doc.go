// Package routing fetches live travel-time samples from a maps provider.
//
// Two providers are supported: Google Directions and TomTom Routing. Both
// normalise their responses into the same Result so the rest of the system
// never sees provider-specific shapes. TomTom needs coordinates, so its
// adapter geocodes addresses (with an in-process cache). The Fetcher pins
// the sampled route with interior waypoint anchors cached on disk, so every
// cycle measures the same physical route even when the fastest route of the
// moment changes.
//
// HTTP calls are retried with jittered backoff here, in the collaborator
// layer; the decision engine itself never retries.
package routing
