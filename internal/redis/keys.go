package redisx

import "fmt"

const ns = "tixgate:v1"

// KeyDedup is the burst-filter marker for one provider payment applied to
// one order.
func KeyDedup(paymentID, orderID string) string {
	return fmt.Sprintf("%s:dedup:%s:%s", ns, paymentID, orderID)
}

func KeyArtifacts(token string) string {
	return fmt.Sprintf("%s:artifacts:%s", ns, token)
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

func PrefixRateLimit(scope string) string {
	return fmt.Sprintf("%s:rl:%s", ns, scope)
}

func ChannelOrdersPaid() string {
	return ns + ":orders:paid"
}

func KeyIdemOrder(idemKey string) string {
	return fmt.Sprintf("%s:idem:orders:%s", ns, idemKey)
}
