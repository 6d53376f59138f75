package probe

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/google/uuid"
)

// Probe destination shared by the handshakes that carry a target.
const probeTargetPort = 80

// VLESS request header layout.
const (
	vlessVersion    = 0x00
	vlessAddonsLen  = 0x00
	vlessCommandTCP = 0x01
	vlessAddrIPv4   = 0x01

	// VLESSHandshakeLen is the size of the request built by BuildVLESSHandshake:
	// version(1) + uuid(16) + addons(1) + command(1) + port(2) + atyp(1) + ipv4(4).
	VLESSHandshakeLen = 1 + 16 + 1 + 1 + 2 + 1 + 4
)

// vlessProbeTarget is a public DNS resolver address, used only as a neutral
// relay destination.
var vlessProbeTarget = [4]byte{8, 8, 8, 8}

// BuildVLESSHandshake returns the VLESS request header asking the server to
// relay TCP to 8.8.8.8:80. Its length is always VLESSHandshakeLen.
func BuildVLESSHandshake(id uuid.UUID) []byte {
	buf := make([]byte, 0, VLESSHandshakeLen)
	buf = append(buf, vlessVersion)
	buf = append(buf, id[:]...)
	buf = append(buf, vlessAddonsLen, vlessCommandTCP)
	buf = binary.BigEndian.AppendUint16(buf, probeTargetPort)
	buf = append(buf, vlessAddrIPv4)
	buf = append(buf, vlessProbeTarget[:]...)
	return buf
}

// Trojan request header layout.
const (
	trojanCommandConnect = 0x01
	trojanAddrDomain     = 0x03

	// trojanProbeDomain is the neutral destination domain.
	trojanProbeDomain = "v1.v2ray.com"
)

var crlf = []byte{'\r', '\n'}

// TrojanHandshakeLen is the size of the request built by BuildTrojanHandshake.
const TrojanHandshakeLen = sha256.Size224*2 + 2 + 1 + 1 + 1 + len(trojanProbeDomain) + 2 + 2

// BuildTrojanHandshake returns the Trojan request header:
// hex(SHA-224(password)) CRLF CMD ATYP len(domain) domain port CRLF,
// asking the server to connect to v1.v2ray.com:80.
func BuildTrojanHandshake(password string) []byte {
	sum := sha256.Sum224([]byte(password))

	buf := make([]byte, 0, TrojanHandshakeLen)
	buf = hex.AppendEncode(buf, sum[:])
	buf = append(buf, crlf...)
	buf = append(buf, trojanCommandConnect, trojanAddrDomain, byte(len(trojanProbeDomain)))
	buf = append(buf, trojanProbeDomain...)
	buf = binary.BigEndian.AppendUint16(buf, probeTargetPort)
	buf = append(buf, crlf...)
	return buf
}
