// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package managerproxy

import (
	"github.com/jhu-cisst/cisst-sub002/lib/descriptor"
	"github.com/jhu-cisst/cisst-sub002/lib/gcm"
)

// Actions served by the manager proxy server (LCM to GCM).
const (
	actionAddClient   = "add_client"
	actionTestMessage = "test_message"

	actionAddProcess    = "add_process"
	actionFindProcess   = "find_process"
	actionRemoveProcess = "remove_process"

	actionAddComponent    = "add_component"
	actionFindComponent   = "find_component"
	actionRemoveComponent = "remove_component"

	actionAddInterfaceProvided    = "add_interface_provided"
	actionAddInterfaceRequired    = "add_interface_required"
	actionFindInterfaceProvided   = "find_interface_provided"
	actionFindInterfaceRequired   = "find_interface_required"
	actionRemoveInterfaceProvided = "remove_interface_provided"
	actionRemoveInterfaceRequired = "remove_interface_required"

	actionConnect                           = "connect"
	actionConnectConfirm                    = "connect_confirm"
	actionDisconnectWithID                  = "disconnect_with_id"
	actionDisconnect                        = "disconnect"
	actionSetProvidedProxyAccessInfo        = "set_provided_proxy_access_info"
	actionGetProvidedProxyAccessInfo        = "get_provided_proxy_access_info"
	actionGetProvidedProxyAccessInfoWithID  = "get_provided_proxy_access_info_with_id"
	actionInitiateConnect                   = "initiate_connect"
	actionConnectServerSideInterfaceRequest = "connect_server_side_interface_request"

	actionGetConnectionsOfProvided = "get_connections_of_provided"
	actionGetConnectionsOfRequired = "get_connections_of_required"

	actionGetNamesOfProcesses          = "get_names_of_processes"
	actionGetNamesOfComponents         = "get_names_of_components"
	actionGetNamesOfInterfacesProvided = "get_names_of_interfaces_provided"
	actionGetNamesOfInterfacesRequired = "get_names_of_interfaces_required"
	actionGetListOfConnections         = "get_list_of_connections"

	actionGetNamesOfCommands              = "get_names_of_commands"
	actionGetNamesOfEventGenerators       = "get_names_of_event_generators"
	actionGetNamesOfFunctions             = "get_names_of_functions"
	actionGetNamesOfEventHandlers         = "get_names_of_event_handlers"
	actionGetDescriptionOfCommand         = "get_description_of_command"
	actionGetDescriptionOfEventGenerator  = "get_description_of_event_generator"
	actionGetDescriptionOfFunction        = "get_description_of_function"
	actionGetDescriptionOfEventHandler    = "get_description_of_event_handler"
	actionGetInterfaceProvidedDescription = "get_interface_provided_description"
	actionGetInterfaceRequiredDescription = "get_interface_required_description"
)

// Actions served by the manager proxy client (GCM to LCM). The
// introspection actions reuse the names above with local request
// bodies.
const (
	actionGetProcessName               = "get_process_name"
	actionCreateComponentProxy         = "create_component_proxy"
	actionRemoveComponentProxy         = "remove_component_proxy"
	actionCreateInterfaceProvidedProxy = "create_interface_provided_proxy"
	actionCreateInterfaceRequiredProxy = "create_interface_required_proxy"
	actionRemoveInterfaceProvidedProxy = "remove_interface_provided_proxy"
	actionRemoveInterfaceRequiredProxy = "remove_interface_required_proxy"
	actionConnectServerSideInterface   = "connect_server_side_interface"
	actionConnectClientSideInterface   = "connect_client_side_interface"
	actionLocalDisconnect              = "local_disconnect"
)

type addClientRequest struct {
	ProcessName string `cbor:"process_name"`
}

type testMessage struct {
	Text string `cbor:"text"`
}

type processRequest struct {
	Process           string `cbor:"process"`
	NetworkDisconnect bool   `cbor:"network_disconnect,omitempty"`
}

type componentRequest struct {
	Process   string `cbor:"process"`
	Component string `cbor:"component"`
}

type connectRequest struct {
	RequestProcess string           `cbor:"request_process"`
	Client         gcm.InterfaceRef `cbor:"client"`
	Server         gcm.InterfaceRef `cbor:"server"`
}

type idRequest struct {
	ID gcm.ConnectionID `cbor:"id"`
}

type pairRequest struct {
	Client   gcm.InterfaceRef `cbor:"client"`
	Server   gcm.InterfaceRef `cbor:"server"`
	Endpoint string           `cbor:"endpoint,omitempty"`
}

type refRequest struct {
	Ref  gcm.InterfaceRef `cbor:"ref"`
	Name string           `cbor:"name,omitempty"`
}

type accessInfoReply struct {
	Endpoint string `cbor:"endpoint,omitempty"`
	OK       bool   `cbor:"ok"`
}

type providedDescriptionReply struct {
	Description descriptor.InterfaceProvided `cbor:"description"`
	OK          bool                         `cbor:"ok"`
}

type requiredDescriptionReply struct {
	Description descriptor.InterfaceRequired `cbor:"description"`
	OK          bool                         `cbor:"ok"`
}

type componentProxyRequest struct {
	Name string `cbor:"name"`
}

type providedProxyRequest struct {
	ComponentProxy string                       `cbor:"component_proxy"`
	Description    descriptor.InterfaceProvided `cbor:"description"`
}

type requiredProxyRequest struct {
	ComponentProxy string                       `cbor:"component_proxy"`
	Description    descriptor.InterfaceRequired `cbor:"description"`
}

type interfaceProxyRequest struct {
	ComponentProxy string `cbor:"component_proxy"`
	Name           string `cbor:"name"`
}

type connectionRequest struct {
	ID     gcm.ConnectionID `cbor:"id"`
	Client gcm.InterfaceRef `cbor:"client"`
	Server gcm.InterfaceRef `cbor:"server"`
}

type localInterfaceRequest struct {
	Component string `cbor:"component"`
	Name      string `cbor:"name"`
	Item      string `cbor:"item,omitempty"`
}
