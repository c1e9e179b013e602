// Package mqtt provides the broker connection for the mesh provisioner.
//
// MQTT is the only path between the provisioner and the mesh daemon that
// owns the Bluetooth adapter:
//
//	provisioner ↔ Mosquitto ↔ graylogic-meshd ↔ BLE mesh
//
// The package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS and a 1MB payload cap
//   - Subscriptions that survive reconnects
//   - A retained online/offline status with Last Will
//
// # Topics
//
// Requests go to graylogic/request/mesh/{id} and answers come back on
// graylogic/response/mesh/{id}. Beacons and admissions arrive on
// graylogic/event/mesh/{kind}. Provisioning progress for Gray Logic Core is
// published on graylogic/core/event/mesh_node_added and
// graylogic/core/event/mesh_node_configured.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllResponses(), 1, handler)
package mqtt
