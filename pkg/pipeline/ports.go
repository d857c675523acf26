package pipeline

import "github.com/google/gopacket/layers"

func layersTCPPort(port uint16) layers.TCPPort { return layers.TCPPort(port) }
func layersUDPPort(port uint16) layers.UDPPort { return layers.UDPPort(port) }
