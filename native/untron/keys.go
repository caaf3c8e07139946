package untron

var (
	providerPrefix      = []byte("untron/provider/")
	orderPrefix         = []byte("untron/order/")
	receiverOwnerPrefix = []byte("untron/receiver/owner/")
	receiverOrderPrefix = []byte("untron/receiver/order/")
	actionPrefix        = []byte("untron/action/")
	accountPrefix       = []byte("untron/account/")
	chainStateKey       = []byte("untron/chain")
	coreVariablesKey    = []byte("untron/params/core")
	feeVariablesKey     = []byte("untron/params/fees")
	zkVariablesKey      = []byte("untron/params/zk")
)

func providerKey(addr [20]byte) []byte {
	return appendKey(providerPrefix, addr[:])
}

func orderKey(id [32]byte) []byte {
	return appendKey(orderPrefix, id[:])
}

func receiverOwnerKey(receiver TronAddress) []byte {
	return appendKey(receiverOwnerPrefix, receiver[:])
}

func receiverOrderKey(receiver TronAddress) []byte {
	return appendKey(receiverOrderPrefix, receiver[:])
}

func actionKey(digest [32]byte) []byte {
	return appendKey(actionPrefix, digest[:])
}

func accountKey(addr [20]byte) []byte {
	return appendKey(accountPrefix, addr[:])
}

func appendKey(prefix, suffix []byte) []byte {
	buf := make([]byte, len(prefix)+len(suffix))
	copy(buf, prefix)
	copy(buf[len(prefix):], suffix)
	return buf
}
