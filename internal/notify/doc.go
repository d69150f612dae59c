// Package notify delivers alert messages to ntfy topics and webhook
// targets. Delivery is best-effort: the decision engine has already
// recorded its decision by the time a message is handed over, and a failed
// send is logged, not retried and never rolled back.
package notify
