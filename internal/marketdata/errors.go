package marketdata

import (
	"errors"
	"fmt"
	"net"
)

// ErrNoPriceData 表示请求区间内没有任何行情，调用方据此跳过交易日。
var ErrNoPriceData = errors.New("marketdata: 区间内无行情数据")

// StatusError 表示数据服务返回了非 2xx 状态码。
type StatusError struct {
	Status int
	Path   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("marketdata: 请求 %s 返回状态码 %d", e.Path, e.Status)
}

// IsRetryable 判断错误是否可重试：网络超时、限流以及服务端错误。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status == 429 || statusErr.Status >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}
