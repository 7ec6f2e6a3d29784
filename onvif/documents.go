package onvif

// Document shapes follow ONVIF Device Management and Media 1.0. Arguments:
// manufacturer, model, firmware version, serial number, hardware id.
const deviceTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope" xmlns:tds="http://www.onvif.org/ver10/device/wsdl">
    <soap:Header/>
    <soap:Body>
        <tds:GetDeviceInformationResponse>
            <tds:Manufacturer>%s</tds:Manufacturer>
            <tds:Model>%s</tds:Model>
            <tds:FirmwareVersion>%s</tds:FirmwareVersion>
            <tds:SerialNumber>%s</tds:SerialNumber>
            <tds:HardwareId>%s</tds:HardwareId>
        </tds:GetDeviceInformationResponse>
    </soap:Body>
</soap:Envelope>`

// Argument: absolute address of the media control endpoint.
const mediaWSDLTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<definitions name="MediaService" targetNamespace="http://www.onvif.org/ver10/media/wsdl" xmlns:soap="http://schemas.xmlsoap.org/wsdl/soap/" xmlns:xsd="http://www.w3.org/2001/XMLSchema" xmlns="http://schemas.xmlsoap.org/wsdl/" xmlns:tns="http://www.onvif.org/ver10/media/wsdl" xmlns:ter="http://www.onvif.org/ver10/error" xmlns:trt="http://www.onvif.org/ver10/media/wsdl">
    <types>
        <xsd:schema targetNamespace="http://www.onvif.org/ver10/media/wsdl">
            <xsd:element name="GetStreamUri">
                <xsd:complexType>
                    <xsd:sequence>
                        <xsd:element name="StreamSetup" type="trt:StreamSetup"/>
                        <xsd:element name="ProfileToken" type="xsd:token"/>
                    </xsd:sequence>
                </xsd:complexType>
            </xsd:element>
            <xsd:element name="GetStreamUriResponse">
                <xsd:complexType>
                    <xsd:sequence>
                        <xsd:element name="MediaUri" type="trt:MediaUri"/>
                    </xsd:sequence>
                </xsd:complexType>
            </xsd:element>
        </xsd:schema>
    </types>
    <message name="GetStreamUriRequest">
        <part name="parameters" element="tns:GetStreamUri"/>
    </message>
    <message name="GetStreamUriResponse">
        <part name="parameters" element="tns:GetStreamUriResponse"/>
    </message>
    <portType name="Media">
        <operation name="GetStreamUri">
            <input message="tns:GetStreamUriRequest"/>
            <output message="tns:GetStreamUriResponse"/>
        </operation>
    </portType>
    <binding name="MediaBinding" type="tns:Media">
        <soap:binding style="document" transport="http://schemas.xmlsoap.org/soap/http"/>
        <operation name="GetStreamUri">
            <soap:operation soapAction="http://www.onvif.org/ver10/media/wsdl/GetStreamUri"/>
            <input>
                <soap:body use="literal"/>
            </input>
            <output>
                <soap:body use="literal"/>
            </output>
        </operation>
    </binding>
    <service name="Media">
        <port name="MediaPort" binding="tns:MediaBinding">
            <soap:address location="%s"/>
        </port>
    </service>
</definitions>`

// Argument: the live relay RTSP URI.
const streamURITemplate = `<?xml version="1.0" encoding="UTF-8"?>
<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope" xmlns:trt="http://www.onvif.org/ver10/media/wsdl" xmlns:tt="http://www.onvif.org/ver10/schema">
    <soap:Header/>
    <soap:Body>
        <trt:GetStreamUriResponse>
            <trt:MediaUri>
                <tt:Uri>%s</tt:Uri>
                <tt:InvalidAfterConnect>false</tt:InvalidAfterConnect>
                <tt:InvalidAfterReboot>false</tt:InvalidAfterReboot>
                <tt:Timeout>PT60S</tt:Timeout>
            </trt:MediaUri>
        </trt:GetStreamUriResponse>
    </soap:Body>
</soap:Envelope>`

const soapFault = `<?xml version="1.0" encoding="UTF-8"?>
<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope">
    <soap:Header/>
    <soap:Body>
        <soap:Fault>
            <soap:Code>
                <soap:Value>soap:Sender</soap:Value>
            </soap:Code>
            <soap:Reason>
                <soap:Text>Operation not supported</soap:Text>
            </soap:Reason>
        </soap:Fault>
    </soap:Body>
</soap:Envelope>`
