package device

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"
)

type DeviceParsingSuite struct {
	suite.Suite
}

func TestDeviceParsingSuite(t *testing.T) {
	suite.Run(t, new(DeviceParsingSuite))
}

func (s *DeviceParsingSuite) TestUserAgentParsing() {
	s.Run("empty user agent returns unknown device", func() {
		s.Equal("Unknown Device", ParseUserAgent(""))
		info := Parse("   ")
		s.Equal(CategoryUnknown, info.Device)
		s.Equal("Unknown Browser", info.Browser)
		s.Equal("Unknown OS", info.OS)
	})

	s.Run("chrome on desktop includes browser and OS", func() {
		userAgent := "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
		info := Parse(userAgent)
		s.Equal(CategoryDesktop, info.Device)
		s.Equal("Chrome", info.Browser)
		s.Contains(info.Display, "Chrome")
		s.Contains(info.Display, " on ")
		s.NotContains(info.Display, "  ")
	})

	s.Run("safari on iphone is mobile and names the platform", func() {
		userAgent := "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
		info := Parse(userAgent)
		s.Equal(CategoryMobile, info.Device)
		s.Contains(info.Display, "on")
		s.Contains(info.Display, "iPhone")
	})

	s.Run("ipad is a tablet", func() {
		userAgent := "Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
		s.Equal(CategoryTablet, Parse(userAgent).Device)
	})

	s.Run("android without mobile token is a tablet", func() {
		userAgent := "Mozilla/5.0 (Linux; Android 13; SM-X700) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
		s.Equal(CategoryTablet, Parse(userAgent).Device)
	})

	s.Run("firefox on linux includes browser and OS", func() {
		userAgent := "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0"
		info := Parse(userAgent)
		s.Equal("Firefox", info.Browser)
		s.Equal(CategoryDesktop, info.Device)
		s.Contains(info.Display, "Firefox")
	})

	s.Run("crawler is a bot", func() {
		userAgent := "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
		s.Equal(CategoryBot, Parse(userAgent).Device)
	})

	s.Run("unknown user agent returns formatted string", func() {
		result := ParseUserAgent("Unknown/1.0")
		s.Contains(result, "on")
		s.NotEmpty(result)
	})

	s.Run("result has no leading or trailing whitespace", func() {
		userAgent := "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"
		result := ParseUserAgent(userAgent)
		s.Equal(result, strings.TrimSpace(result))
	})
}
